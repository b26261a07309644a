// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Each package that needs configuration declares its own Config struct
// with `env` tags and loads it through Load or MustLoad; there is no
// central configuration tree.
package config
