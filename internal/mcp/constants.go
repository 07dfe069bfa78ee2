package mcp

// Default values for tool parameters
const (
	// MatchDefaultLimit caps tm_match results when the caller gives no limit
	MatchDefaultLimit = 5
	// Rationale: a CAT tool shows a handful of proposals; more rarely
	// helps an assistant choose a translation and costs context.

	// MatchMaxLimit is the largest limit tm_match accepts
	MatchMaxLimit = 50

	// MatchMaxQueryRunes rejects pasted documents passed as one segment
	MatchMaxQueryRunes = 4000
	// Rationale: token alignment is quadratic in segment length.

	// StatsMaxExternal limits the external TMs listed by tm_stats
	StatsMaxExternal = 200
)

// Tool names
const (
	ToolMatch          = "tm_match"
	ToolLookup         = "tm_lookup"
	ToolStats          = "tm_stats"
	ToolSetTranslation = "tm_set_translation"
	ToolSave           = "tm_save"
)
