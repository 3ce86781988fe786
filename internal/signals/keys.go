// Package signals defines the closed, versioned vocabulary of blackboard
// signal keys. Contributors communicate exclusively through these keys, never
// through direct coupling. The set is additive: keys may be introduced in new
// versions but existing keys are stable.
//
// Convention: keys are partitioned by producer. Two contributors must never
// write the same key within one wave; the dotted prefix names the owner.
package signals

// Version of the signal dictionary. Bump when keys are added.
const Version = 3

// User-agent analysis (owner: useragent).
const (
	UAIsBot        = "ua.is_bot"
	UAIsMissing    = "ua.is_missing"
	UABrowser      = "ua.browser"  // chrome|firefox|safari|edge|""
	UAOS           = "ua.os"       // windows|macos|linux|android|ios|""
	UAIsTool       = "ua.is_tool"  // curl/wget/python/go-http etc.
	UAToolName     = "ua.tool_name"
	UAClaimedBot   = "ua.claimed_bot"  // UA self-identifies as a known crawler
	UABotName      = "ua.bot_name"
	UALengthBucket = "ua.length_bucket"
)

// Header analysis (owner: header).
const (
	HeaderCount           = "header.count"
	HeaderMissingLanguage = "header.missing_accept_language"
	HeaderMissingAccept   = "header.missing_accept"
	HeaderHasSecChUA      = "header.has_sec_ch_ua"
	HeaderIsUpgradeWS     = "header.is_websocket_upgrade"
	HeaderAcceptLanguage  = "header.accept_language"
	HeaderHasCookies      = "header.has_cookies"
	HeaderRefererPresent  = "header.referer_present"
)

// TLS fingerprint (owner: tls_fingerprint).
const (
	TLSProtocol    = "tls.protocol"
	TLSJA3         = "tls.ja3"
	TLSKnownClient = "tls.known_client" // fingerprint matched a known browser/tool
	TLSClientLabel = "tls.client_label"
)

// HTTP/2 fingerprint (owner: http2_fingerprint).
const (
	H2FingerprintPresent = "h2.fingerprint_present"
	H2Fingerprint        = "h2.fingerprint"
	H2ClientLabel        = "h2.client_label" // e.g. Chrome_Desktop_120
)

// HTTP/3 / QUIC (owner: http3_fingerprint).
const (
	H3Present     = "h3.present"
	H3ClientLabel = "h3.client_label"
)

// TCP/IP stack (owner: tcp_fingerprint).
const (
	TCPInferredOS = "tcp.inferred_os"
	TCPTTL        = "tcp.ttl"
	TCPWindow     = "tcp.window"
)

// Network / geo (owner: geo, datacenter).
const (
	IPIsDatacenter = "ip.is_datacenter"
	IPASNOrg       = "ip.asn_org"
	GeoCountry     = "geo.country"
	GeoChanged     = "geo.changed"        // country changed within the session window
	GeoVelocity    = "geo.velocity_kmh"   // implied travel speed between observations
)

// Reputation (owner: fastpath_reputation, reputation_bias).
const (
	RepUAState      = "rep.ua_state"
	RepIPState      = "rep.ip_state"
	RepCombinedHit  = "rep.combined_hit"
	RepFastPath     = "rep.fast_path" // "allow"|"abort"|""
	RepHistoryRatio = "rep.history_bot_ratio"
)

// Verified bots (owner: verified_bot, botlist).
const (
	BotClaimed        = "bot.claimed"
	BotVerified       = "bot.verified"
	BotSpoofed        = "bot.spoofed"
	BotVerifiedName   = "bot.verified_name"
	BotSecurityTool   = "bot.security_tool"
	BotAiScraper      = "bot.ai_scraper"
)

// Behavioral waveform (owner: waveform).
const (
	WaveRequestCount    = "wave.request_count"
	WaveTimingCV        = "wave.timing_cv" // coefficient of variation of inter-arrival intervals
	WaveBurst10s        = "wave.burst_10s"
	WaveBurst60s        = "wave.burst_60s"
	WavePathDiversity   = "wave.path_diversity"
	WaveSequentialScan  = "wave.sequential_scan"
	WaveDepthFirst      = "wave.depth_first"
	WaveMarkovScraper   = "wave.markov_scraper" // Page→Page dominant transitions
	WaveUAStable        = "wave.ua_stable"
)

// Attack payload (owner: haxxor).
const (
	AttackDetected   = "attack.detected"
	AttackCategories = "attack.categories" // comma-joined category list
	AttackHitCount   = "attack.hit_count"
)

// Response feedback (owner: response_behavior).
const (
	Response404Count     = "response.404_count"
	Response404Paths     = "response.404_unique_paths"
	ResponseHoneypot     = "response.honeypot_hits"
	ResponseAuthFailures = "response.auth_failures"
	ResponseScanPattern  = "response.scan_pattern"
)

// Account takeover (owner: account_takeover).
const (
	AtoDetected       = "ato.detected"
	AtoLoginAttempts  = "ato.login_attempts"
	AtoAuthFailures   = "ato.auth_failures"
	AtoPostWithoutGet = "ato.post_without_get"
	AtoDriftScore     = "ato.drift_score"
)

// Protocol compliance (owner: transport_protocol).
const (
	ProtoKind         = "proto.kind" // websocket|grpc|graphql|sse|""
	ProtoViolation    = "proto.violation"
	ProtoCSWSHSuspect = "proto.cswsh_suspect"
)

// Stream abuse (owner: stream_abuse).
const (
	StreamWSStorm        = "stream.ws_storm"
	StreamSSEReconnects  = "stream.sse_reconnects"
	StreamEndpointSpread = "stream.endpoint_spread"
	StreamMixedScraping  = "stream.mixed_scraping"
)

// Cache behavior (owner: cache_behavior).
const (
	CacheBypassCount = "cache.bypass_count"
	CacheBusterQuery = "cache.buster_query"
)

// Cross-layer correlation (owner: correlation).
const (
	CorrOSMismatch      = "corr.os_mismatch"
	CorrBrowserMismatch = "corr.browser_mismatch"
	CorrTLSImplausible  = "corr.tls_implausible"
	CorrLangGeoMismatch = "corr.lang_geo_mismatch"
	CorrDCConsumerUA    = "corr.dc_consumer_ua"
	CorrConsistent      = "corr.consistent"
)

// Similarity / clustering (owner: similarity, cluster).
const (
	SimNeighborCount  = "sim.neighbor_count"
	SimMajorityBot    = "sim.majority_bot"
	SimMeanDistance   = "sim.mean_distance"
	ClusterID         = "cluster.id"
	ClusterSize       = "cluster.size"
	ClusterBotRatio   = "cluster.bot_ratio"
)

// Learned models (owner: heuristic, heuristic_late, llm).
const (
	ModelHeuristicScore = "model.heuristic_score"
	ModelLlmAvailable   = "model.llm_available"
	ModelLlmClass       = "model.llm_class"
)

// Intent / threat (owner: intent).
const (
	IntentThreatScore = "intent.threat_score"
	IntentCategoryKey = "intent.category"
)
