package main

//go:generate swag init -g cmd/eventsync/main.go -o docs

// @title           Eventsync API
// @version         0.1.0
// @description     Community events synced from an on-chain contract, with local cache fallback.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
