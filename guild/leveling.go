package guild

// Level thresholds are tiered: advancing through levels 2..10 costs
// 2,000 XP per level, 11..50 costs 50,000, and everything above costs
// 100,000. Guild levels use the same tiers at triple cost. Levels are
// computed by successive subtraction so tier boundaries are exact.

const guildCostMultiplier = 3

// UserLevel maps cumulative personal XP to a level. Monotonic in xp;
// never below 1.
func UserLevel(xp int64) int {
	return levelFromXP(xp, 1)
}

// GuildLevel maps cumulative guild XP to a guild level.
func GuildLevel(xp int64) int {
	return levelFromXP(xp, guildCostMultiplier)
}

func levelFromXP(xp int64, mult int64) int {
	level := 1
	remaining := xp
	for {
		cost := nextLevelCost(level) * mult
		if remaining < cost {
			return level
		}
		remaining -= cost
		level++
	}
}

// nextLevelCost is the XP needed to advance from level to level+1.
func nextLevelCost(level int) int64 {
	next := level + 1
	switch {
	case next <= 10:
		return 2000
	case next <= 50:
		return 50000
	default:
		return 100000
	}
}
