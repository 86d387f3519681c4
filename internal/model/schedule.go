package model

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

var (
	ErrISOFormat     = errors.New("invalid ISO8601 duration")
	ErrEmptySchedule = errors.New("both cron and duration are empty")
)

// Definition converts the schedule to gocron job definition. Cron wins
// when both fields are set.
func (s Schedule) Definition() (gocron.JobDefinition, error) {
	switch {
	case s.Cron != "":
		if err := ParseCron(s.Cron); err != nil {
			return nil, fmt.Errorf("parsing cron: %w", err)
		}
		return gocron.CronJob(strings.TrimSpace(s.Cron), false), nil
	case s.Duration != "":
		d, err := ParseISODuration(s.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing duration: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("duration must be positive, got %s", d)
		}
		return gocron.DurationJob(d), nil
	default:
		return nil, ErrEmptySchedule
	}
}

// ParseCron validates a standard 5 field cron expression or a descriptor
// like @hourly or @every 5m
func ParseCron(expr string) error {
	e := strings.TrimSpace(expr)
	if e == "" {
		return errors.New("empty cron expression")
	}
	if strings.HasPrefix(e, "@") {
		_, err := cron.ParseStandard(e)
		return err
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser5.Parse(e)
	return err
}

var isoDurationRx = regexp.MustCompile(`^P(?:(?P<day>\d+)D)?(?:T(?:(?P<hour>\d+)H)?(?:(?P<minute>\d+)M)?(?:(?P<second>\d+(?:[.,]\d+)?)S)?)?$`)

// ParseISODuration parses the day and time part of ISO8601 durations,
// eg P1D, PT1H30M or PT0.5S. Years, months and weeks are not supported as
// they have no fixed length.
func ParseISODuration(dur string) (time.Duration, error) {
	if dur == "P" || strings.HasSuffix(dur, "T") {
		return 0, ErrISOFormat
	}
	match := isoDurationRx.FindStringSubmatch(dur)
	if match == nil {
		return 0, ErrISOFormat
	}

	var ret time.Duration
	for i, name := range isoDurationRx.SubexpNames() {
		part := match[i]
		if name == "" || part == "" {
			continue
		}
		var unit time.Duration
		switch name {
		case "day":
			unit = 24 * time.Hour
		case "hour":
			unit = time.Hour
		case "minute":
			unit = time.Minute
		case "second":
			unit = time.Second
		}
		num, frac, err := splitNumber(part)
		if err != nil {
			return 0, err
		}
		if num > math.MaxInt64/int64(unit) || ret > time.Duration(math.MaxInt64)-time.Duration(num)*unit {
			return 0, errors.New("duration overflow")
		}
		ret += time.Duration(num)*unit + time.Duration(frac*float64(unit))
	}
	return ret, nil
}

func splitNumber(s string) (num int64, frac float64, err error) {
	s = strings.Replace(s, ",", ".", 1)
	a, b, ok := strings.Cut(s, ".")
	if ok {
		if len(b) > 9 {
			return 0, 0, ErrISOFormat
		}
		f, err := strconv.Atoi(b)
		if err != nil {
			return 0, 0, fmt.Errorf("parsing fraction: %w", err)
		}
		frac = float64(f) / math.Pow10(len(b))
	}
	num, err = strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing number: %w", err)
	}
	return num, frac, nil
}
