// Package configs provides embedded configuration templates for docrag.
//
// Templates are embedded at build time so `docrag config init` works from
// any distribution without the source tree.
//
// Configuration hierarchy (see internal/config Load()):
//  1. Hardcoded defaults (internal/config NewConfig())
//  2. User config (~/.config/docrag/config.yaml)
//  3. Project config (.docrag.yaml)
//  4. Environment variables (DOCRAG_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for machine-level configuration.
// Created by: `docrag config init --global`
// Contains: embedding provider, Ollama host, answer model.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration.
// Created by: `docrag config init` at .docrag.yaml in the project root
// Contains: corpora, chunking and retrieval settings.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
