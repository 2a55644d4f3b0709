package main

// General API documentation for swaggo. Run `swag init -g cmd/foundationsd/docs.go -o docs` to regenerate.
//
// @title           foundationsd API
// @version         1.0
// @description     HTTP API for on-device text generation.
//
// @contact.name   foundationsd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
