package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/oscar",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Generation: GenerationConfig{
			Provider:            "gemini",
			Timeout:             "2m",
			MaxParallelVariants: 4,
		},
		Voice: VoiceConfig{
			Agent:          "elevenlabs",
			ConnectionType: "websocket",
			MaxToolSteps:   4,
			Microphone:     "device",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:3001",
		},
		Security: SecurityConfig{
			CredentialStorage: string(SecurityPlainText),
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# Oscar System Configuration
# Location: ~/.config/oscar/settings.toml
# This file uses TOML format: https://toml.io

# Directory where config, credentials, logs and exports are stored
data_directory = "~/.local/share/oscar"
`
}

func GenerateUserConfigTemplate() string {
	return `# Oscar User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

[generation]
# LLM used to produce HTML: gemini, openai, openrouter, anthropic or ollama
provider = "gemini"

# Model name (empty = provider default, gemini-2.0-flash for gemini)
model = ""

# Upper bound for one generate/edit/vibe-code call
timeout = "2m"

# Variants generated concurrently when 4 are requested
max_parallel_variants = 4

# Use a running "oscar serve" instead of calling the provider directly
# remote_url = "http://127.0.0.1:3001"

[voice]
# Conversational agent: "elevenlabs" (realtime voice) or "local" (typed, LLM backed)
agent = "elevenlabs"

# ElevenLabs agent id
agent_id = ""

# ElevenLabs transport. Only "websocket" is supported by this client.
connection_type = "websocket"

# Tool rounds per user turn for the local agent
max_tool_steps = 4

# Microphone permission: "device" checks for a capture device, "allow", "deny"
microphone = "device"

[server]
# Preview and generation API address
addr = "127.0.0.1:3001"

# Optional seed document replacing the built-in base.html
# base_html = "~/mockups/base.html"

[security]
# "plaintext" (credentials.toml) or "ssh_key" (credentials.enc)
credential_storage = "plaintext"
# ssh_key_path = "~/.ssh/id_ed25519"

# Optional base URL overrides
# [[providers]]
# id = "ollama"
# base_url = "http://localhost:11434"
`
}
