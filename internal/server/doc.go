// Package server hosts the Fiber HTTP service that exposes cached region
// artifacts, plus the glue that turns configuration into download endpoints
// and the shared upstream HTTP client. Handlers only talk to loaders and the
// cache index through narrow interfaces so tests can inject fakes, and the
// diagnostics routes under /-/ live in the routes subpackage.
package server
