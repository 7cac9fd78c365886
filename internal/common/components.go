package common

const (
	ComponentPipeline    = "pipeline"
	ComponentConsumer    = "consumer"
	ComponentABICache    = "abi-cache"
	ComponentDocStore    = "docstore"
	ComponentProcessor   = "processor"
	ComponentBlacklist   = "blacklist"
	ComponentAPI         = "api"
	ComponentMetrics     = "metrics"
)

var AllComponents = map[string]struct{}{
	ComponentPipeline:  {},
	ComponentConsumer:  {},
	ComponentABICache:  {},
	ComponentDocStore:  {},
	ComponentProcessor: {},
	ComponentBlacklist: {},
	ComponentAPI:       {},
	ComponentMetrics:   {},
}
