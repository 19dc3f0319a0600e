// Package handlers contains HTTP handlers for the cicdsim status API.
//
// The handlers only read from the build status store. Errors are rendered
// through the foundation/errors HTTP adapter so every failure carries a
// category-derived status code and a JSON body.
package handlers
