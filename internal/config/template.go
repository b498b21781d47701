package config

// Template is written out by `cuecard config` when no file exists. It
// holds the built-in defaults.
const Template = `# ElevenLabs speech synthesis. The API key is read from
# ELEVENLABS_API_KEY (or a .env file), never from this file.
synth:
  base_url: "https://api.elevenlabs.io/v1"
  model: "eleven_monolingual_v1"
  # characters sent per line
  text_limit: 100
  timeout: "10s"
  # at most this many requests per interval
  rate_limit:
    tokens: 5
    interval: "1m"
  voice_settings:
    stability: 0.5
    similarity_boost: 0.75
    style: 0.5
    use_speaker_boost: true

# Audio that fails these checks is replaced with half a second of silence.
validator:
  min_size: 1024
  max_size: 10485760
  fallback_sample_rate: 44100
  decode_timeout: "5s"

cache:
  # in-memory clip cache
  capacity_mb: 100
  max_age: "30m"
  sweep_interval: "1m"
  # keep clips across runs in sqlite
  durable: true
  # db_path: "~/.local/share/cuecard/voices.db"
  db_path: ""
  compression_level: 3
  preload_spacing: "200ms"

playback:
  voice_enabled: true
  words_per_minute: 150
  line_timeout: "5s"
  # upcoming voiced lines fetched ahead of the reader
  lookahead: 1
  narrator_voice: ""
  # your role; its lines are never read aloud
  focused_role: ""
  # roundrobin or fuzzy
  voice_policy: "roundrobin"
  read_locations: false
  read_actions: true
  read_parentheticals: true
  read_dialogue: true

audio:
  # 44100 or 48000
  sample_rate: 44100
  volume: 1.0

ui:
  # lines per second
  scroll_speed: 0.5
  # 0 fits the terminal
  width: 0
  mouse: false
`
