package rpc

// Engine API paths, one constant per route so callers and tests never
// drift on spelling.
const (
	healthPath = "/health"

	loginPath    = "/api/auth/login"
	tokenPath    = "/api/auth/token"
	registerPath = "/api/auth/register"

	statusPath       = "/api/status"
	bunkersPath      = "/api/bunkers"
	currentRoundPath = "/api/rounds/current"
	recentEventsPath = "/api/events/recent"

	mePath       = "/api/players/me"
	joinPath     = "/api/players/join"
	topUpPath    = "/api/players/topup"
	relocatePath = "/api/players/relocate"
	exitPath     = "/api/players/exit"
	actionsPath  = "/api/actions"

	resolvePath = "/api/rounds/resolve"
	cleanupPath = "/api/cleanup"

	openRoundPath     = "/api/rounds/open"
	faucetPath        = "/api/faucet"
	haltPath          = "/api/halt"
	emergencyHaltPath = "/api/halt/emergency"
)
