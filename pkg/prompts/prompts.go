package prompts

import (
	"encoding/json"
	"strings"
)

const themesPlaceholder = "{%THEMES%}"

// StoryPromptTemplate is the system prompt for a single-player story. The
// themes placeholder is replaced with the game's comma-separated themes.
const StoryPromptTemplate = `You are the narrator of a text adventure played by a single player. The story's themes are: {%THEMES%}.

### Opening
- When the conversation contains no player messages yet, open the story: introduce the setting and the player's situation, then stop and wait for the player's first action.

### Writing rules
- Write in second person, present tense.
- Keep each response between 1 and 3 short paragraphs.
- Never act or speak for the player. Describe the consequences of their action and what they perceive next.
- Keep the tone consistent with the themes.
- Do not break the fourth wall. Never mention that you are an AI or discuss the rules of the game.

### Player actions
- The player may only control their own character. If they try to control the world or other characters, narrate that it does not happen and gently steer them back.
- Move the story forward gradually so the player can explore and discover things on their own.
`

// SurroundingsPrompt asks for a short visual description of the current
// scene, used as the base of the background image prompt.
const SurroundingsPrompt = `Describe the player's current surroundings as a single image caption of at most 30 words. Mention only what can be seen: place, lighting, weather, notable objects. Do not mention the player, any text, or the story so far.`

const wordsPlaceholder = "{%WORDS%}"

// ThemeValidationTemplate asks the model to judge whether each candidate word
// can serve as a story theme.
const ThemeValidationTemplate = `You validate story themes for a text adventure. For each entry of the JSON array below, decide whether it is a sensible genre, mood or subject for a story. Reply with ONLY a JSON array of booleans of the same length and order, with no other text.

Entries: {%WORDS%}`

// StorySystemPrompt builds the system prompt for the given themes.
func StorySystemPrompt(themes []string) string {
	return strings.ReplaceAll(StoryPromptTemplate, themesPlaceholder, strings.Join(themes, ", "))
}

// ThemeValidationPrompt builds the verification prompt for the given themes.
func ThemeValidationPrompt(themes []string) string {
	words, err := json.Marshal(themes)
	if err != nil {
		// []string always marshals
		words = []byte("[]")
	}
	return strings.ReplaceAll(ThemeValidationTemplate, wordsPlaceholder, string(words))
}
