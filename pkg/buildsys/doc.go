// Package buildsys evaluates Starlark BUILD files, resolves the sources of the targets they declare and runs the
// rule actions: copyright checks, source link extraction, documentation builds and shell tasks.
package buildsys
