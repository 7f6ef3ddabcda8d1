package types

import "strings"

// Emotion is a normalized label from the canonical set E (§6.2). Free-form
// phrases never persist; Normalize always returns a member of this set.
type Emotion string

const (
	EmotionJoy          Emotion = "joy"
	EmotionPride         Emotion = "pride"
	EmotionCuriosity     Emotion = "curiosity"
	EmotionWarmth        Emotion = "warmth"
	EmotionRelief        Emotion = "relief"
	EmotionAwe           Emotion = "awe"
	EmotionFlow          Emotion = "flow"
	EmotionNeutral       Emotion = "neutral"
	EmotionFrustration   Emotion = "frustration"
	EmotionLoneliness    Emotion = "loneliness"
	EmotionHurt          Emotion = "hurt"
	EmotionFear          Emotion = "fear"
	EmotionSadness       Emotion = "sadness"
	EmotionAnger         Emotion = "anger"
	EmotionDisgust       Emotion = "disgust"
	EmotionSurprise      Emotion = "surprise"
	EmotionResolve       Emotion = "resolve"
	EmotionLonging       Emotion = "longing"
)

// Valence classifies an emotion into positive/negative/neutral/surprise
// buckets, used by the emotion-match channel's same-valence partial credit.
type Valence int

const (
	ValenceNeutral Valence = iota
	ValencePositive
	ValenceNegative
	ValenceSurprise
)

var canonicalEmotions = map[Emotion]bool{
	EmotionJoy: true, EmotionPride: true, EmotionCuriosity: true, EmotionWarmth: true,
	EmotionRelief: true, EmotionAwe: true, EmotionFlow: true, EmotionNeutral: true,
	EmotionFrustration: true, EmotionLoneliness: true, EmotionHurt: true, EmotionFear: true,
	EmotionSadness: true, EmotionAnger: true, EmotionDisgust: true, EmotionSurprise: true,
	EmotionResolve: true, EmotionLonging: true,
}

var positiveEmotions = map[Emotion]bool{
	EmotionJoy: true, EmotionPride: true, EmotionCuriosity: true, EmotionWarmth: true,
	EmotionRelief: true, EmotionAwe: true, EmotionFlow: true, EmotionResolve: true,
	EmotionLonging: true,
}

var negativeEmotions = map[Emotion]bool{
	EmotionFrustration: true, EmotionLoneliness: true, EmotionHurt: true, EmotionFear: true,
	EmotionSadness: true, EmotionAnger: true, EmotionDisgust: true,
}

// ValenceOf classifies a canonical emotion. Unknown emotions classify as neutral.
func ValenceOf(e Emotion) Valence {
	switch {
	case e == EmotionSurprise:
		return ValenceSurprise
	case e == EmotionNeutral:
		return ValenceNeutral
	case positiveEmotions[e]:
		return ValencePositive
	case negativeEmotions[e]:
		return ValenceNegative
	default:
		return ValenceNeutral
	}
}

// emotionAliases maps common compound/synonym phrases straight to a
// canonical emotion. This table, like the relation and drive-bias tables in
// §6.2, is the kind of thing operators extend via config, not code; the
// built-in set below is the seed shipped with the engine.
var emotionAliases = map[string]Emotion{
	"happy":        EmotionJoy,
	"happiness":    EmotionJoy,
	"excited":      EmotionJoy,
	"proud":        EmotionPride,
	"curious":      EmotionCuriosity,
	"interested":   EmotionCuriosity,
	"warm":         EmotionWarmth,
	"affection":    EmotionWarmth,
	"relieved":     EmotionRelief,
	"awe-struck":   EmotionAwe,
	"awestruck":    EmotionAwe,
	"wonder":       EmotionAwe,
	"focused":      EmotionFlow,
	"in the zone":  EmotionFlow,
	"frustrated":   EmotionFrustration,
	"annoyed":      EmotionFrustration,
	"lonely":       EmotionLoneliness,
	"isolated":     EmotionLoneliness,
	"hurt feelings": EmotionHurt,
	"wounded":      EmotionHurt,
	"afraid":       EmotionFear,
	"scared":       EmotionFear,
	"anxious":      EmotionFear,
	"sad":          EmotionSadness,
	"down":         EmotionSadness,
	"angry":        EmotionAnger,
	"mad":          EmotionAnger,
	"irritated":    EmotionAnger,
	"disgusted":    EmotionDisgust,
	"repulsed":     EmotionDisgust,
	"surprised":    EmotionSurprise,
	"shocked":      EmotionSurprise,
	"resolved":     EmotionResolve,
	"determined":   EmotionResolve,
	"longing for":  EmotionLonging,
	"yearning":     EmotionLonging,
	"existential dread": EmotionFear,
	"existential fear":  EmotionFear,
	"existential doubt": EmotionFear,
}

// keywordScan is the last-resort synonym scan over individual words when no
// exact or alias match was found.
var keywordScan = map[string]Emotion{
	"glad": EmotionJoy, "delighted": EmotionJoy,
	"tired": EmotionSadness, "exhausted": EmotionSadness,
	"furious": EmotionAnger, "livid": EmotionAnger,
	"nervous": EmotionFear, "worried": EmotionFear,
	"grossed": EmotionDisgust,
	"stuck":   EmotionFrustration,
}

// NormalizeEmotion implements §6.2's normalization pipeline: exact match,
// then alias table, then compound-string token scan for a canonical token,
// then keyword synonym scan, else neutral. It never returns a non-canonical
// label.
func NormalizeEmotion(raw string) Emotion {
	trimmed := strings.TrimSpace(strings.ToLower(raw))
	if trimmed == "" {
		return EmotionNeutral
	}

	if e := Emotion(trimmed); canonicalEmotions[e] {
		return e
	}

	if e, ok := emotionAliases[trimmed]; ok {
		return e
	}

	fields := strings.FieldsFunc(trimmed, func(r rune) bool {
		return !(r == '-' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, f := range fields {
		if e := Emotion(f); canonicalEmotions[e] {
			return e
		}
	}
	for _, f := range fields {
		if e, ok := emotionAliases[f]; ok {
			return e
		}
		if e, ok := keywordScan[f]; ok {
			return e
		}
	}

	return EmotionNeutral
}

// FirstWord returns the first whitespace-delimited token of the emotion
// label, used by the per-emotion diversity cap which collides e.g.
// "existential dread" and "existential fear".
func (e Emotion) FirstWord() string {
	s := string(e)
	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		return s[:idx]
	}
	return s
}
