package domain

import (
	"testing"
	"time"
)

func TestQuietAt(t *testing.T) {
	tests := []struct {
		name  string
		start int
		end   int
		hour  int
		want  bool
	}{
		{name: "wrap start hour", start: 23, end: 8, hour: 23, want: true},
		{name: "wrap end hour is open", start: 23, end: 8, hour: 8, want: false},
		{name: "wrap after midnight", start: 23, end: 8, hour: 2, want: true},
		{name: "wrap midday", start: 23, end: 8, hour: 12, want: false},
		{name: "wrap midnight", start: 23, end: 8, hour: 0, want: true},
		{name: "wrap before start", start: 23, end: 8, hour: 22, want: false},
		{name: "same day inside", start: 9, end: 18, hour: 9, want: true},
		{name: "same day last hour", start: 9, end: 18, hour: 17, want: true},
		{name: "same day end", start: 9, end: 18, hour: 18, want: false},
		{name: "same day before", start: 9, end: 18, hour: 8, want: false},
		{name: "equal hours always quiet", start: 5, end: 5, hour: 5, want: true},
		{name: "equal hours other hour", start: 5, end: 5, hour: 17, want: true},
		{name: "zero window", start: 0, end: 0, hour: 23, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := quietAt(QuietHours{StartHour: tt.start, EndHour: tt.end}, tt.hour)
			if got != tt.want {
				t.Fatalf("quietAt(%d-%d, %d) = %v, want %v", tt.start, tt.end, tt.hour, got, tt.want)
			}
		})
	}
}

func TestQuietAtExhaustive(t *testing.T) {
	for start := 0; start < 24; start++ {
		for end := 0; end < 24; end++ {
			for hour := 0; hour < 24; hour++ {
				var want bool
				switch {
				case start == end:
					want = true
				case start < end:
					want = start <= hour && hour < end
				default:
					want = hour >= start || hour < end
				}
				if got := quietAt(QuietHours{StartHour: start, EndHour: end}, hour); got != want {
					t.Fatalf("quietAt(%d-%d, %d) = %v, want %v", start, end, hour, got, want)
				}
			}
		}
	}
}

func TestIsQuietUsesTimezone(t *testing.T) {
	// 01:00 UTC = 10:00 в Сеуле
	now := time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC)
	settings := RecipientSettings{Enabled: true, QuietHours: &QuietHours{StartHour: 23, EndHour: 8}}

	if IsQuiet(settings, now) {
		t.Fatalf("ожидали, что в 10:00 по Сеулу тишины нет")
	}

	settings.Timezone = "UTC"
	if !IsQuiet(settings, now) {
		t.Fatalf("ожидали тишину в 01:00 UTC")
	}

	settings.Timezone = "Mars/Olympus_Mons"
	if !IsQuiet(settings, now) {
		t.Fatalf("для неизвестного пояса ожидали час по UTC")
	}
}

func TestIsQuietWithoutWindow(t *testing.T) {
	settings := RecipientSettings{Enabled: true}
	for hour := 0; hour < 24; hour++ {
		now := time.Date(2026, 1, 1, hour, 0, 0, 0, time.UTC)
		if IsQuiet(settings, now) {
			t.Fatalf("без часов тишины не ожидали подавления в %d:00", hour)
		}
	}
}

func TestShouldDeliver(t *testing.T) {
	now := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC) // 12:00 KST
	base := RecipientSettings{Enabled: true, Timezone: DefaultTimezone, Preferences: Preferences{}}

	if !ShouldDeliver(base, TopicContests, now) {
		t.Fatalf("отсутствующий ключ темы должен считаться включённым")
	}

	disabled := base
	disabled.Enabled = false
	for _, topic := range append(Topics(), "") {
		if ShouldDeliver(disabled, topic, now) {
			t.Fatalf("выключенный пользователь не должен получать %q", topic)
		}
	}

	optedOut := base
	optedOut.Preferences = Preferences{TopicContests: false}
	if ShouldDeliver(optedOut, TopicContests, now) {
		t.Fatalf("явное отключение темы должно побеждать")
	}
	if !ShouldDeliver(optedOut, TopicCommunity, now) {
		t.Fatalf("отключение одной темы не должно влиять на другие")
	}
	if !ShouldDeliver(optedOut, "", now) {
		t.Fatalf("рассылка без темы не зависит от предпочтений")
	}

	quiet := base
	quiet.QuietHours = &QuietHours{StartHour: 12, EndHour: 13}
	if ShouldDeliver(quiet, TopicContests, now) {
		t.Fatalf("в часы тишины доставка должна подавляться")
	}
}
