// Package docs provides generated OpenAPI documentation.
//
// Broadsheet API
//
//	@title			Broadsheet API
//	@version		1.0
//	@description	Newspaper archive pipeline API for ingesting, extracting, classifying, and searching editions.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/broadsheet-archive/broadsheet
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/broadsheet/serve.go -o ./swagger --parseDependency --parseInternal
