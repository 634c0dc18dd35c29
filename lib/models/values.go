package models

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidLocationID = errors.New("invalid location id")

// LocationID is the canonical identifier of an enrollment location. The
// scheduler API reports integers, so every string form is parsed into this.
type LocationID int64

func ParseLocationID(s string) (LocationID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLocationID, s)
	}
	id := LocationID(n)
	if !id.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLocationID, s)
	}
	return id, nil
}

func (id LocationID) Valid() bool { return id > 0 }

func (id LocationID) String() string { return strconv.FormatInt(int64(id), 10) }

// StringSet is a sorted, duplicate-free list of strings.
type StringSet []string

func (s StringSet) Contains(v string) bool {
	_, found := slices.BinarySearch(s, v)
	return found
}

// Add returns the set with v inserted, and whether it was absent before.
func (s StringSet) Add(v string) (StringSet, bool) {
	i, found := slices.BinarySearch(s, v)
	if found {
		return s, false
	}
	return slices.Insert(slices.Clone(s), i, v), true
}

// Remove returns the set without v, and whether it was present before.
func (s StringSet) Remove(v string) (StringSet, bool) {
	i, found := slices.BinarySearch(s, v)
	if !found {
		return s, false
	}
	return slices.Delete(slices.Clone(s), i, i+1), true
}

func NewStringSet(values ...string) StringSet {
	set := StringSet{}
	for _, v := range values {
		set, _ = set.Add(v)
	}
	return set
}

const SlotTimeLayout = "2006-01-02T15:04"

// SlotInfo is one bookable interview slot as reported by the scheduler API.
type SlotInfo struct {
	LocationID     LocationID `json:"locationId"`
	StartTimestamp string     `json:"startTimestamp"`
	EndTimestamp   string     `json:"endTimestamp"`
	Duration       int        `json:"duration"`
	Active         bool       `json:"active"`
}

// Start parses the slot start. Timestamps are local to the location.
func (s SlotInfo) Start() (time.Time, error) {
	return time.Parse(SlotTimeLayout, s.StartTimestamp)
}

type Availability struct {
	HasSlots bool
	Slots    []SlotInfo
}

// CheckResult is the outcome of one successful availability check.
type CheckResult struct {
	LocationID LocationID
	CheckedAt  time.Time
	Availability
}
