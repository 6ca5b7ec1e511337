package geo

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"golang.org/x/sync/singleflight"
)

const (
	dataDir         = "data/geoip"
	countryFilename = "GeoLite2-Country.mmdb"
	asnFilename     = "GeoLite2-ASN.mmdb"
)

const (
	CountryFileName = countryFilename
	ASNFileName     = asnFilename
)

// Location is the geo metadata attached to logged client addresses.
type Location struct {
	Country string
	ASOrg   string
}

var (
	countryDB *geoip2.Reader
	asnDB     *geoip2.Reader
	readerMu  sync.RWMutex

	lookupGroup singleflight.Group
)

var ErrUnavailable = errors.New("geo: databases not loaded")

func FilePath(filename string) string {
	return filepath.Join(dataDir, filename)
}

func EnsureDataDir() error {
	return os.MkdirAll(dataDir, 0o755)
}

// ReloadFromDisk swaps in fresh readers from the data directory. The old
// readers are closed only after the swap so concurrent lookups never see a
// closed handle.
func ReloadFromDisk() error {
	var (
		errorList     []error
		countryReader *geoip2.Reader
		asnReader     *geoip2.Reader
	)

	if reader, err := readerFromDisk(countryFilename); err == nil {
		countryReader = reader
	} else {
		errorList = append(errorList, fmt.Errorf("country: %w", err))
	}

	if reader, err := readerFromDisk(asnFilename); err == nil {
		asnReader = reader
	} else {
		errorList = append(errorList, fmt.Errorf("asn: %w", err))
	}

	if countryReader == nil || asnReader == nil {
		if countryReader != nil {
			_ = countryReader.Close()
		}
		if asnReader != nil {
			_ = asnReader.Close()
		}
		return errors.Join(errorList...)
	}

	readerMu.Lock()
	oldCountry := countryDB
	oldASN := asnDB
	countryDB = countryReader
	asnDB = asnReader
	readerMu.Unlock()

	if oldCountry != nil {
		_ = oldCountry.Close()
	}
	if oldASN != nil {
		_ = oldASN.Close()
	}

	return nil
}

func readerFromDisk(filename string) (*geoip2.Reader, error) {
	data, err := os.ReadFile(FilePath(filename))
	if err != nil {
		return nil, err
	}
	return geoip2.FromBytes(data)
}

func Available() bool {
	readerMu.RLock()
	defer readerMu.RUnlock()
	return countryDB != nil && asnDB != nil
}

// Resolve returns country and AS organization for an address. Concurrent
// lookups for the same address are collapsed; the backfill job resolves the
// same client address in bursts.
func Resolve(addr netip.Addr) (Location, error) {
	if !addr.IsValid() {
		return Location{}, fmt.Errorf("geo: invalid address")
	}

	result, err, _ := lookupGroup.Do(addr.String(), func() (interface{}, error) {
		return resolveUncached(addr)
	})
	if err != nil {
		return Location{}, err
	}

	return result.(Location), nil
}

func resolveUncached(addr netip.Addr) (Location, error) {
	readerMu.RLock()
	defer readerMu.RUnlock()

	if countryDB == nil || asnDB == nil {
		return Location{}, ErrUnavailable
	}

	ip := net.IP(addr.AsSlice())
	var loc Location

	if record, err := countryDB.Country(ip); err == nil {
		loc.Country = record.Country.IsoCode
	}
	if record, err := asnDB.ASN(ip); err == nil {
		loc.ASOrg = record.AutonomousSystemOrganization
	}

	if loc.Country == "" && loc.ASOrg == "" {
		return Location{}, fmt.Errorf("geo: no data for %s", addr)
	}

	return loc, nil
}
