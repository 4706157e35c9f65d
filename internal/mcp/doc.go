// Package mcp exposes the describe pipeline as an MCP tool over stdio.
//
// It registers a single tool, describe_repository, using the MCP SDK
// (github.com/modelcontextprotocol/go-sdk/mcp). Each call runs one pipeline
// to completion and returns the run report as structured content.
package mcp
