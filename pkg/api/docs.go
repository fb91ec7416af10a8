// Package api provides the HTTP API for gheregistry.
//
//	@title						gheregistry API
//	@version					1.0
//	@description				Registry of GitHub Enterprise servers.
//	@description				Each server is probed for a GitHub API before it is stored,
//	@description				and name and API URL are unique across the registry.
//
//	@contact.name				ethPandaOps
//	@contact.url				https://github.com/ethpandaops/gheregistry
//
//	@license.name				MIT
//	@license.url				https://github.com/ethpandaops/gheregistry/blob/main/LICENSE
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT issued by the identity provider. Format: "Bearer {token}"
//
//	@tag.name					servers
//	@tag.description			GitHub Enterprise server registrations
//
//	@tag.name					system
//	@tag.description			System health and metadata
//
//	@tag.name					events
//	@tag.description			Real-time registry events
package api

//go:generate swag init -g docs.go -d ./,../registry,../store -o ./docs --outputTypes go
