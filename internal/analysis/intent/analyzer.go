package intent

import (
	"sort"
	"strings"
	"unicode"
)

// Label is the kind of live data a message asks for.
type Label string

const (
	None     Label = "none"
	Weather  Label = "weather"
	Football Label = "football"
)

// Decision is the detected intent with the extracted city or team.
type Decision struct {
	Intent Label
	City   string
	Team   string
	Score  int
}

// NeedsLiveData reports whether the decision asks for a weather or football lookup.
func (d Decision) NeedsLiveData() bool {
	switch d.Intent {
	case Weather:
		return d.City != ""
	case Football:
		return d.Team != ""
	default:
		return false
	}
}

var keywordBuckets = map[Label][]string{
	Weather: {
		"weather", "forecast", "temperature", "rain", "raining", "rainy", "sunny", "snow", "snowing",
		"wind", "windy", "humid", "humidity", "umbrella", "degrees", "hot outside", "cold outside",
		"météo", "meteo", "quel temps", "température", "pluie", "pleut", "neige",
		"soleil", "vent", "chaud", "froid", "parapluie",
	},
	Football: {
		"football", "soccer", "match", "matches", "score", "scores", "fixture", "fixtures", "game",
		"result", "results", "league", "goal", "goals", "kick off", "kickoff", "next game", "last game",
		"foot", "équipe", "resultat", "résultat", "résultats", "prochain match", "dernier match", "ligue",
	},
}

// knownClubs maps common spellings to the name the sports API searches best with.
var knownClubs = map[string]string{
	"arsenal":             "Arsenal",
	"chelsea":             "Chelsea",
	"liverpool":           "Liverpool",
	"manchester united":   "Manchester United",
	"man united":          "Manchester United",
	"man utd":             "Manchester United",
	"manchester city":     "Manchester City",
	"man city":            "Manchester City",
	"tottenham":           "Tottenham",
	"spurs":               "Tottenham",
	"newcastle":           "Newcastle",
	"aston villa":         "Aston Villa",
	"everton":             "Everton",
	"west ham":            "West Ham",
	"barcelona":           "Barcelona",
	"barca":               "Barcelona",
	"barça":               "Barcelona",
	"real madrid":         "Real Madrid",
	"atletico madrid":     "Atletico Madrid",
	"atlético madrid":     "Atletico Madrid",
	"sevilla":             "Sevilla",
	"bayern":              "Bayern Munich",
	"bayern munich":       "Bayern Munich",
	"dortmund":            "Borussia Dortmund",
	"borussia dortmund":   "Borussia Dortmund",
	"juventus":            "Juventus",
	"juve":                "Juventus",
	"inter milan":         "Inter Milan",
	"ac milan":            "AC Milan",
	"napoli":              "Napoli",
	"roma":                "Roma",
	"psg":                 "Paris SG",
	"paris saint-germain": "Paris SG",
	"paris sg":            "Paris SG",
	"marseille":           "Marseille",
	"lyon":                "Lyon",
	"monaco":              "Monaco",
	"lille":               "Lille",
	"ajax":                "Ajax",
	"psv":                 "PSV Eindhoven",
	"benfica":             "Benfica",
	"porto":               "Porto",
	"sporting":            "Sporting CP",
	"celtic":              "Celtic",
	"rangers":             "Rangers",
	"galatasaray":         "Galatasaray",
}

// clubAliases holds the keys of knownClubs, longest first, so "borussia dortmund"
// is matched before "dortmund".
var clubAliases = func() []string {
	aliases := make([]string, 0, len(knownClubs))
	for alias := range knownClubs {
		aliases = append(aliases, alias)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	return aliases
}()

// cityMarkers and teamMarkers introduce the place or club a user asks about.
var (
	cityMarkers = map[string]bool{"in": true, "at": true, "for": true, "à": true, "au": true, "en": true}
	teamMarkers = map[string]bool{"of": true, "for": true, "de": true, "du": true}
)

const phrasePunctuation = "?!.,;:\"()"

// cityStopWords end a captured place name.
var cityStopWords = map[string]bool{
	"today": true, "tomorrow": true, "tonight": true, "now": true, "right": true, "this": true,
	"the": true, "please": true, "week": true, "weekend": true, "morning": true, "evening": true,
	"aujourd'hui": true, "demain": true, "ce": true, "cette": true, "maintenant": true, "soir": true,
	"matin": true, "le": true, "la": true, "stp": true, "svp": true, "me": true, "my": true,
	"a": true, "an": true, "our": true, "your": true, "next": true, "last": true,
}

// Analyze decides whether text needs weather or football data.
func Analyze(text string) Decision {
	normalized := normalize(text)
	if normalized == "" {
		return Decision{Intent: None}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, " "+word+" ") {
				scores[label] += 3
			}
		}
	}

	team := findClub(normalized)
	weatherScore := scores[Weather]
	footballScore := scores[Football]

	switch {
	case weatherScore > footballScore:
		return Decision{Intent: Weather, City: ExtractCity(text), Score: weatherScore}
	case footballScore > 0 || team != "":
		if team == "" {
			team = phraseAfter(text, teamMarkers)
		} else {
			footballScore += 4
		}
		return Decision{Intent: Football, Team: team, Score: footballScore}
	default:
		return Decision{Intent: None}
	}
}

// ExtractCity returns the place named after in/at/for/à, title-cased.
func ExtractCity(text string) string {
	return phraseAfter(text, cityMarkers)
}

// phraseAfter returns up to three title-cased words following the first
// marker that is followed by a usable phrase.
func phraseAfter(text string, markers map[string]bool) string {
	tokens := strings.Fields(text)
	for i, token := range tokens {
		if !markers[strings.ToLower(strings.Trim(token, phrasePunctuation))] {
			continue
		}
		if phrase := collectPhrase(tokens[i+1:]); phrase != "" {
			return phrase
		}
	}
	return ""
}

func collectPhrase(tokens []string) string {
	var words []string
	for _, token := range tokens {
		if len(words) == 3 {
			break
		}
		word := strings.Trim(token, phrasePunctuation)
		lower := strings.ToLower(word)
		if word == "" || cityStopWords[lower] || isKeyword(lower) {
			break
		}
		words = append(words, titleWord(word))
		if strings.TrimRight(token, phrasePunctuation) != token {
			break
		}
	}
	return strings.Join(words, " ")
}

func findClub(normalized string) string {
	for _, alias := range clubAliases {
		if strings.Contains(normalized, " "+alias+" ") {
			return knownClubs[alias]
		}
	}
	return ""
}

func isKeyword(word string) bool {
	for _, keywords := range keywordBuckets {
		for _, keyword := range keywords {
			if keyword == word {
				return true
			}
		}
	}
	return false
}

func titleWord(word string) string {
	runes := []rune(strings.ToLower(word))
	for i, r := range runes {
		if i == 0 || runes[i-1] == '-' {
			runes[i] = unicode.ToUpper(r)
		}
	}
	return string(runes)
}

// normalize lower-cases text and pads every word with single spaces so that
// keyword lookups only match whole words.
func normalize(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
	if len(fields) == 0 {
		return ""
	}
	return " " + strings.Join(fields, " ") + " "
}
