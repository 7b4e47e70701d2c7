// Package main Storefront Server API
//
//	@title						Storefront Server API
//	@version					1.0
//	@description				Order cancellation and refund workflow for the storefront.
//
//	@contact.name				Storefront Support
//	@contact.email				support@storefront.example
//
//	@license.name				Proprietary
//
//	@host						localhost:8080
//	@BasePath					/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"
//
//	@tag.name					Cancellation
//	@tag.description			Customer cancellation requests and refund estimates
//
//	@tag.name					Admin
//	@tag.description			Cancellation review, refund completion and order import
//
//	@tag.name					Order
//	@tag.description			Customer order lookups
//
//	@tag.name					Webhooks
//	@tag.description			Payment provider callbacks
package main
