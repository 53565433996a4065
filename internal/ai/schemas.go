package ai

// ResearchSchema 调查结果
var ResearchSchema = MustSchema("research_result", `{
  "type": "object",
  "required": ["summary", "description", "entries"],
  "properties": {
    "summary": {"type": "string"},
    "description": {"type": "string"},
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["summary"],
        "properties": {
          "title": {"type": "string"},
          "url": {"type": "string"},
          "summary": {"type": "string"},
          "description": {"type": "string"},
          "received_at": {"type": "string"},
          "start_time": {"type": "string"},
          "end_time": {"type": "string"},
          "location": {"type": "string"},
          "weather_summary": {"type": "string"}
        }
      }
    }
  }
}`)

// ProgramPlanSchema 节目结构
var ProgramPlanSchema = MustSchema("program_plan", `{
  "type": "object",
  "required": ["title", "description", "program_seconds", "segments"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "program_seconds": {"type": "number", "exclusiveMinimum": 0},
    "segments": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["title", "program_segment_ids", "segment_seconds", "is_music", "description", "segment_type"],
        "properties": {
          "title": {"type": "string"},
          "program_segment_ids": {"type": "array", "items": {"type": "string"}},
          "segment_seconds": {"type": "number", "exclusiveMinimum": 0},
          "is_music": {"type": "boolean"},
          "description": {"type": "string"},
          "constraints": {"type": "string"},
          "segment_type": {"enum": ["opening", "content", "music", "ending"]},
          "background_music": {"type": "string"}
        }
      }
    }
  }
}`)

// TalkScriptSegmentSchema 台词; continue_segment为true时必须给出hand_over
var TalkScriptSegmentSchema = MustSchema("talk_script_segment", `{
  "type": "object",
  "required": ["scripts", "continue_segment"],
  "properties": {
    "scripts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["radio_cast_id", "content"],
        "properties": {
          "radio_cast_id": {"type": "string", "minLength": 1},
          "speaking_rate": {"type": "number", "minimum": 0.25, "maximum": 4},
          "content": {"type": "string", "minLength": 1}
        }
      }
    },
    "continue_segment": {"type": "boolean"},
    "hand_over": {"type": ["string", "null"]},
    "custom_pronunciations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["phrase", "pronunciation"],
        "properties": {
          "phrase": {"type": "string"},
          "pronunciation": {"type": "string"}
        }
      }
    }
  },
  "if": {"properties": {"continue_segment": {"const": true}}},
  "then": {"required": ["hand_over"], "properties": {"hand_over": {"type": "string", "minLength": 1}}}
}`)

// MusicPlanSchema 作曲计划
var MusicPlanSchema = MustSchema("music_plan", `{
  "type": "object",
  "required": ["title", "stanzas"],
  "properties": {
    "title": {"type": "string"},
    "stanzas": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["prompts", "seconds", "config"],
        "properties": {
          "prompts": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["text", "weight"],
              "properties": {
                "text": {"type": "string", "minLength": 1},
                "weight": {"type": "number"}
              }
            }
          },
          "seconds": {"type": "number", "exclusiveMinimum": 0},
          "config": {
            "type": "object",
            "required": ["bpm"],
            "properties": {
              "bpm": {"type": "integer", "minimum": 60, "maximum": 200},
              "density": {"type": "number", "minimum": 0, "maximum": 1},
              "brightness": {"type": "number", "minimum": 0, "maximum": 1},
              "scale": {"type": "string"},
              "mute_bass": {"type": "boolean"},
              "mute_drums": {"type": "boolean"},
              "only_bass_and_drums": {"type": "boolean"}
            }
          }
        }
      }
    }
  }
}`)
