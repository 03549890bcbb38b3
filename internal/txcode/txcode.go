// Package txcode builds human-readable transaction codes of the form
// <branch><ddmmyyHHMM><NN>, e.g. CAB01150126143007.
package txcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

const (
	DefaultBranch   = "CAB01"
	DefaultTimezone = "Asia/Jakarta"

	stampLayout = "020106" + "1504"
)

var branchPattern = regexp.MustCompile(`^[A-Z0-9]{2,12}$`)

// ValidBranch reports whether a branch prefix is safe to embed in a code.
func ValidBranch(branch string) bool {
	return branchPattern.MatchString(branch)
}

// LoadLocation resolves the business timezone. When the tz database is not
// available it falls back to a fixed UTC+7 zone.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

type Generator struct {
	branch string
	loc    *time.Location
	now    func() time.Time
	suffix func() int
}

func NewGenerator(branch string, loc *time.Location) *Generator {
	if branch == "" {
		branch = DefaultBranch
	}
	if loc == nil {
		loc = LoadLocation(DefaultTimezone)
	}
	g := &Generator{
		branch: branch,
		loc:    loc,
		now:    time.Now,
	}
	g.suffix = g.randomSuffix
	return g
}

func (g *Generator) Branch() string {
	return g.branch
}

// Next returns a fresh code. Codes minted in the same minute differ only by
// the two-digit suffix, so callers must tolerate collisions.
func (g *Generator) Next() string {
	return fmt.Sprintf("%s%s%02d", g.branch, g.now().In(g.loc).Format(stampLayout), g.suffix())
}

func (g *Generator) randomSuffix() int {
	n, err := rand.Int(rand.Reader, big.NewInt(100))
	if err != nil {
		return int(g.now().UnixNano() % 100)
	}
	return int(n.Int64())
}
