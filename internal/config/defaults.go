package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	adb := "adb"

	return Config{
		Agent: AgentConfig{
			Host: "127.0.0.1",
			Port: 0,
		},
		Client: ClientConfig{
			TimeoutMS:     5000,
			MaxChunkBytes: 64 << 20,
		},
		ADB: ADBConfig{
			Command:        CommandConfig{Raw: adb, Argv: mustParseADBCommand(adb)},
			SwipeDefaultMS: 300,
		},
		Log: LogConfig{Level: "info"},
	}
}
