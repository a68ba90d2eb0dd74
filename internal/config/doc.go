// Package config loads application settings.
//
// Settings come from three places, later ones winning: built-in defaults, a
// TOML file, and ISOCORE_* environment variables.
//
//	[log]
//	level = "debug"
//	format = "console"
//
//	[scripts]
//	dir = "scripts"
//	watch = true
//	call_timeout = "100ms"
//
//	[scene]
//	archetypes = "archetypes.yaml"
//	spawn = [{ archetype = "soldier", count = 3 }]
//
//	[loop]
//	tick_rate = 60
//	frames = 0
package config
