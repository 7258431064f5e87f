// Package metadata parses grant XML documents and loads them into the catalogue.
package metadata
