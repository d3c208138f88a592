package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SeatPolicy bounds how seat pools may be sized and how fast seats may be claimed.
type SeatPolicy struct {
	MinQuantity         int `mapstructure:"minQuantity"`
	MaxCustomerQuantity int `mapstructure:"maxCustomerQuantity"`
	MaxAdminQuantity    int `mapstructure:"maxAdminQuantity"`
	// AssignPerMinute limits seat assignment requests per actor.
	AssignPerMinute int `mapstructure:"assignPerMinute"`
	// CheckoutPerMinute limits checkout session creation per actor.
	CheckoutPerMinute int `mapstructure:"checkoutPerMinute"`
}

func DefaultSeatPolicy() SeatPolicy {
	return SeatPolicy{
		MinQuantity:         1,
		MaxCustomerQuantity: 100,
		MaxAdminQuantity:    500,
		AssignPerMinute:     30,
		CheckoutPerMinute:   5,
	}
}

type SeatPolicyHolder struct {
	current atomic.Value // holds SeatPolicy
}

// NewStaticSeatPolicyHolder returns a holder that never reloads.
func NewStaticSeatPolicyHolder(policy SeatPolicy) *SeatPolicyHolder {
	holder := &SeatPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewSeatPolicyHolder() (*SeatPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("seats")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/seatly/config")
	v.AddConfigPath("/etc/seatly")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SEATLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return loadSeatPolicy(v, true)
}

// LoadSeatPolicyFile reads the policy from an explicit file path.
func LoadSeatPolicyFile(path string, watch bool) (*SeatPolicyHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return loadSeatPolicy(v, watch)
}

func loadSeatPolicy(v *viper.Viper, watch bool) (*SeatPolicyHolder, error) {
	defaults := DefaultSeatPolicy()
	v.SetDefault("seats.minQuantity", defaults.MinQuantity)
	v.SetDefault("seats.maxCustomerQuantity", defaults.MaxCustomerQuantity)
	v.SetDefault("seats.maxAdminQuantity", defaults.MaxAdminQuantity)
	v.SetDefault("seats.assignPerMinute", defaults.AssignPerMinute)
	v.SetDefault("seats.checkoutPerMinute", defaults.CheckoutPerMinute)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	policy, err := decodeSeatPolicy(v)
	if err != nil {
		return nil, err
	}
	if err := validateSeatPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticSeatPolicyHolder(policy)
	if !watch || !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSeatPolicy(v)
		if err != nil {
			log.Printf("[seat-policy] reload failed: %v", err)
			return
		}
		if err := validateSeatPolicy(updated); err != nil {
			log.Printf("[seat-policy] invalid policy ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[seat-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SeatPolicyHolder) Get() SeatPolicy {
	if h == nil {
		return DefaultSeatPolicy()
	}
	policy, ok := h.current.Load().(SeatPolicy)
	if !ok {
		return DefaultSeatPolicy()
	}
	return policy
}

// decodeSeatPolicy goes through Unmarshal so per-key defaults survive a
// partially populated file.
func decodeSeatPolicy(v *viper.Viper) (SeatPolicy, error) {
	var wrapper struct {
		Seats SeatPolicy `mapstructure:"seats"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return SeatPolicy{}, err
	}
	return wrapper.Seats, nil
}

func validateSeatPolicy(p SeatPolicy) error {
	if p.MinQuantity < 1 {
		return errors.New("seats.minQuantity must be at least 1")
	}
	if p.MaxCustomerQuantity < p.MinQuantity {
		return fmt.Errorf("seats.maxCustomerQuantity must be >= %d", p.MinQuantity)
	}
	if p.MaxAdminQuantity < p.MaxCustomerQuantity {
		return errors.New("seats.maxAdminQuantity must be >= seats.maxCustomerQuantity")
	}
	if p.AssignPerMinute < 0 || p.CheckoutPerMinute < 0 {
		return errors.New("seats rate limits cannot be negative")
	}
	return nil
}
