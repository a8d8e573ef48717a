package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	model "github.com/okian/tally/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestDate(t *testing.T) {
	convey.Convey("Given calendar dates", t, func() {
		convey.Convey("When building a valid date", func() {
			d, err := model.NewDate(2025, time.July, 17)

			convey.Convey("Then it should format as YYYY-MM-DD", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(d.String(), convey.ShouldEqual, "2025-07-17")
			})
		})

		convey.Convey("When building a day that does not exist", func() {
			_, err := model.NewDate(2025, time.February, 29)

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, model.ErrInvalidDate), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the year is a leap year", func() {
			_, err := model.NewDate(2024, time.February, 29)
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("When comparing dates", func() {
			a := model.Date{Year: 2025, Month: time.December, Day: 31}
			b := model.Date{Year: 2026, Month: time.January, Day: 1}

			convey.So(a.Before(b), convey.ShouldBeTrue)
			convey.So(b.After(a), convey.ShouldBeTrue)
			convey.So(a.Compare(a), convey.ShouldEqual, 0)
			convey.So(a.AddDays(1), convey.ShouldEqual, b)
			convey.So(a.DaysUntil(b), convey.ShouldEqual, 1)
			convey.So(b.DaysUntil(a), convey.ShouldEqual, -1)
		})

		convey.Convey("When round-tripping through JSON", func() {
			in := model.ScoreEntry{
				Date:   model.Date{Year: 2025, Month: time.July, Day: 17},
				Scores: map[string]int{"Pepo": 12, "Mene": 10},
			}
			raw, err := json.Marshal(in)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(raw), convey.ShouldEqual, `{"date":"2025-07-17","scores":{"Mene":10,"Pepo":12}}`)

			var out model.ScoreEntry
			convey.So(json.Unmarshal(raw, &out), convey.ShouldBeNil)
			convey.So(out.Equal(in), convey.ShouldBeTrue)
		})

		convey.Convey("When decoding a malformed date", func() {
			var d model.Date
			err := d.UnmarshalText([]byte("July 17"))
			convey.So(errors.Is(err, model.ErrInvalidDate), convey.ShouldBeTrue)
		})
	})
}

func TestScoreEntry(t *testing.T) {
	convey.Convey("Given a score entry", t, func() {
		e := model.ScoreEntry{Scores: map[string]int{"Josh": 9, "Pepo": 12}}

		convey.Convey("Then players should be sorted", func() {
			convey.So(e.Players(), convey.ShouldResemble, []string{"Josh", "Pepo"})
			convey.So(e.Has("Josh"), convey.ShouldBeTrue)
			convey.So(e.Has("josh"), convey.ShouldBeFalse)
		})

		convey.Convey("Then clones should not alias the score map", func() {
			c := e.Clone()
			c.Scores["Josh"] = 100
			convey.So(e.Scores["Josh"], convey.ShouldEqual, 9)
		})
	})
}
