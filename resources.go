package precache

// DefaultCacheName names the cache store the resources are kept in.
const DefaultCacheName = "interest-app"

// DefaultResources is the precache list of the calculator app.
// Paths are resolved against the base URL of the deployment.
var DefaultResources = []string{
	"/elm-interest-calculator/",
	"manifest.json",
	"elm.js",
	"style.css",
}
