// Package web embeds the page templates and static assets.
package web

import "embed"

// TemplatesFS holds the HTML templates parsed at server start.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds stylesheets and scripts served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
