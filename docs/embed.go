package docs

import _ "embed"

//go:embed notify-api.openapi.yaml
var embeddedNotifyOpenAPI []byte

//go:embed swagger.html
var embeddedNotifySwaggerHTML []byte

// NotifyOpenAPI is the OpenAPI document of the notify-api service.
var NotifyOpenAPI = embeddedNotifyOpenAPI

// NotifySwaggerHTML renders NotifyOpenAPI with Swagger UI.
var NotifySwaggerHTML = embeddedNotifySwaggerHTML
