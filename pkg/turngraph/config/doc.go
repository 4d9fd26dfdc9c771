/*
Package config reads layered settings (built-in defaults, a YAML or JSON
file, environment variables) into plain maps and decodes the result into
a typed struct.

Accessors never fail. A missing key or a value of the wrong shape yields
the supplied default:

	cfg, err := config.FromFile("evchat.yaml")
	if err != nil {
	    return err
	}
	model := cfg.String("llm.model", "gpt-oss:20b")
	timeout := cfg.Duration("llm.timeout", 2*time.Minute)

Keys are dotted paths into nested sections; Sub returns one section.
Durations accept "30s" style strings or a number of seconds. Integers,
floats and booleans are parsed from strings, so values that came from the
environment read the same as values from a file. A float with a fraction
never becomes an int.

FromEnv maps EVCHAT_LLM_MODEL to llm.model. Merge lays one Config over
another, later layers winning key by key:

	cfg = defaults.Merge(file).Merge(config.FromEnv("EVCHAT_", os.Environ()))

Decode fills a struct through its mapstructure tags:

	var app AppConfig
	err := cfg.Decode(&app)

A Config is read-only after construction and safe for concurrent reads.
*/
package config
