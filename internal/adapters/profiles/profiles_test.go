package profiles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tally/internal/domain/model"
)

func mustDate(s string) model.Date {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAge(t *testing.T) {
	Convey("Given a birthday", t, func() {
		today := mustDate("2026-03-15")

		Convey("Then age counts completed years", func() {
			So(*Age("1990-03-15", today), ShouldEqual, 36)
			So(*Age("1990-03-16", today), ShouldEqual, 35)
			So(*Age("1990-02-28", today), ShouldEqual, 36)
			So(*Age("2026-03-15", today), ShouldEqual, 0)
		})

		Convey("Then unusable birthdays have no age", func() {
			So(Age("", today), ShouldBeNil)
			So(Age("15/03/1990", today), ShouldBeNil)
			So(Age("2030-01-01", today), ShouldBeNil)
		})
	})
}

func TestParse(t *testing.T) {
	Convey("Given a JSON profiles document", t, func() {
		long := strings.Repeat("a", 58) + "   tail"
		doc := `{
			"Josh": {"nickname": "The Machine", "birthday": "1990-05-01", "description": "` + long + `"},
			"Pepo": {"nickname": "Pepo"},
			"Broken": "not an object"
		}`

		got, err := parse([]byte(doc))

		Convey("Then mappings are decoded and others skipped", func() {
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 2)
			So(got["Josh"].Nickname, ShouldEqual, "The Machine")
			So(got["Josh"].Birthday, ShouldEqual, "1990-05-01")
			So(got["Pepo"].Description, ShouldEqual, "")
		})

		Convey("Then long descriptions are cut and trimmed", func() {
			So(got["Josh"].Description, ShouldEqual, strings.Repeat("a", 58))
		})
	})

	Convey("Given a YAML profiles document", t, func() {
		doc := "Mene:\n  nickname: Señor\n  birthday: 1988-12-24\n  description: ñandú ñandú\n"

		got, err := parse([]byte(doc))

		Convey("Then it decodes like JSON", func() {
			So(err, ShouldBeNil)
			So(got["Mene"].Nickname, ShouldEqual, "Señor")
			So(got["Mene"].Birthday, ShouldEqual, "1988-12-24")
			So(got["Mene"].Description, ShouldEqual, "ñandú ñandú")
		})
	})

	Convey("Given a multi-byte description longer than the limit", t, func() {
		desc := strings.Repeat("é", MaxDescriptionLength+5)

		Convey("Then truncation counts characters, not bytes", func() {
			So(truncate(desc, MaxDescriptionLength), ShouldEqual, strings.Repeat("é", MaxDescriptionLength))
		})
	})

	Convey("Given a document that is not a mapping", t, func() {
		_, err := parse([]byte("- a\n- b\n"))

		Convey("Then it is rejected", func() {
			So(errors.Is(err, ErrInvalidFile), ShouldBeTrue)
		})
	})
}

func TestDirectory(t *testing.T) {
	Convey("Given a profiles directory", t, func() {
		ctx := context.Background()
		today := mustDate("2026-06-01")
		path := filepath.Join(t.TempDir(), "profiles.json")

		Convey("When the file does not exist", func() {
			got, err := New(path).All(ctx, today)

			Convey("Then there are no profiles", func() {
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})
		})

		Convey("When no path is configured", func() {
			got, err := New("").All(ctx, today)

			Convey("Then there are no profiles", func() {
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})
		})

		Convey("When the file exists", func() {
			So(os.WriteFile(path, []byte(`{"Josh":{"birthday":"1990-05-01"}}`), 0o600), ShouldBeNil)
			dir := New(path)

			got, err := dir.All(ctx, today)

			Convey("Then ages are computed", func() {
				So(err, ShouldBeNil)
				So(*got["Josh"].Age, ShouldEqual, 36)
			})

			Convey("And a rewritten file is picked up", func() {
				So(os.WriteFile(path, []byte(`{"Josh":{"birthday":"1990-05-01"},"Pepo":{"nickname":"P"}}`), 0o600), ShouldBeNil)

				again, err := dir.All(ctx, today)
				So(err, ShouldBeNil)
				So(again, ShouldHaveLength, 2)
				So(again["Pepo"].Age, ShouldBeNil)
			})
		})
	})
}
