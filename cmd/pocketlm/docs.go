package main

// General API documentation for swaggo. Run `swag init -g cmd/pocketlm/docs.go`
// to regenerate internal/httpapi/swagger.json.
//
// @title           pocketlm API
// @version         1.0
// @description     HTTP API for on-device model downloads, model lifecycle and chat sessions.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
