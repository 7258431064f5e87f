// Package bdss reconciles the local catalogue against the bulk-data listing
// service that publishes patent-grant archives.
package bdss
