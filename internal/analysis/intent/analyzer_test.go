package intent

import "testing"

func TestAnalyzeWeatherWithCity(t *testing.T) {
	decision := Analyze("Will it rain tomorrow in New York?")
	if decision.Intent != Weather {
		t.Fatalf("expected weather intent, got %s", decision.Intent)
	}
	if decision.City != "New York" {
		t.Fatalf("expected New York, got %q", decision.City)
	}
	if !decision.NeedsLiveData() {
		t.Fatal("weather with a city should need live data")
	}
}

func TestAnalyzeFrenchWeather(t *testing.T) {
	decision := Analyze("Quel temps fait-il à Lyon ?")
	if decision.Intent != Weather {
		t.Fatalf("expected weather intent, got %s", decision.Intent)
	}
	if decision.City != "Lyon" {
		t.Fatalf("expected Lyon, got %q", decision.City)
	}
}

func TestAnalyzeWeatherInClubCity(t *testing.T) {
	decision := Analyze("what's the weather like in Liverpool today")
	if decision.Intent != Weather || decision.City != "Liverpool" {
		t.Fatalf("expected weather in Liverpool, got %+v", decision)
	}
}

func TestAnalyzeWeatherWithoutCity(t *testing.T) {
	decision := Analyze("is it going to be windy this weekend?")
	if decision.Intent != Weather {
		t.Fatalf("expected weather intent, got %s", decision.Intent)
	}
	if decision.City != "" || decision.NeedsLiveData() {
		t.Fatalf("expected no city, got %+v", decision)
	}
}

func TestAnalyzeKnownClub(t *testing.T) {
	decision := Analyze("How did Man Utd do?")
	if decision.Intent != Football {
		t.Fatalf("expected football intent, got %s", decision.Intent)
	}
	if decision.Team != "Manchester United" {
		t.Fatalf("expected Manchester United, got %q", decision.Team)
	}
}

func TestAnalyzeTeamPhrase(t *testing.T) {
	decision := Analyze("What's the latest score for Real Betis?")
	if decision.Intent != Football {
		t.Fatalf("expected football intent, got %s", decision.Intent)
	}
	if decision.Team != "Real Betis" {
		t.Fatalf("expected Real Betis, got %q", decision.Team)
	}
}

func TestAnalyzeSmallTalk(t *testing.T) {
	for _, text := range []string{"Hello there", "", "tell me a joke about cats"} {
		if decision := Analyze(text); decision.Intent != None || decision.NeedsLiveData() {
			t.Fatalf("expected no intent for %q, got %+v", text, decision)
		}
	}
}

func TestAnalyzeMatchesWholeWords(t *testing.T) {
	if decision := Analyze("my training went well"); decision.Intent != None {
		t.Fatalf("rain inside training should not count, got %+v", decision)
	}
}
