// Package web compiles the UI assets into the server binary.
package web

import "embed"

// TemplatesFS holds the HTML templates rendered server-side.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and scripts served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
