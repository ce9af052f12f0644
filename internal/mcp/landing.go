package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>RCA Code Retrieval</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background: #0f172a; color: #e2e8f0; margin: 0; padding: 3rem; }
  h1 { font-size: 1.5rem; color: #f8fafc; }
  code, a { font-family: Menlo, monospace; color: #a5b4fc; }
  li { margin: 0.4rem 0; }
</style>
</head>
<body>
<h1>RCA Code Retrieval</h1>
<p>Hybrid retrieval over indexed Java code for root cause analysis.</p>
<ul>
  <li><a href="/mcp">/mcp</a> MCP Streamable HTTP (retrieve_code, analyze_error, fetch_fragment, get_index_status)</li>
  <li><code>POST /analyze</code> JSON analysis endpoint</li>
  <li><a href="/health">/health</a> health check</li>
  <li><a href="/metrics">/metrics</a> Prometheus metrics</li>
</ul>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingHTML))
	}
}
