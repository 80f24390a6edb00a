/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package templates

// PlanItemSchema accepts one planned task. Field values may be any scalar; they
// are coerced to strings afterwards. An item must name at least a title or a query.
const PlanItemSchema = `{
  "type": "object",
  "properties": {
    "title":  {"type": ["string", "number", "boolean", "null"]},
    "intent": {"type": ["string", "number", "boolean", "null"]},
    "query":  {"type": ["string", "number", "boolean", "null"]}
  },
  "anyOf": [
    {"required": ["title"]},
    {"required": ["query"]}
  ]
}`

// WorkerOutputSchema accepts the synthesized result of one task.
// content and summary may be any JSON value and are re-encoded when not strings.
const WorkerOutputSchema = `{
  "type": "object",
  "anyOf": [
    {"required": ["content"]},
    {"required": ["summary"]}
  ]
}`

// ReflectionSchema accepts a sufficiency judgment
const ReflectionSchema = `{
  "type": "object",
  "required": ["is_sufficient"],
  "properties": {
    "is_sufficient": {"type": ["boolean", "string"]},
    "knowledge_gap": {"type": ["string", "null"]}
  }
}`
