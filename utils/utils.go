package utils

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/goccy/go-json"
	"github.com/mitchellh/hashstructure"
	"github.com/oklog/ulid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"
)

var (
	ulidMutex   = sync.Mutex{}
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

func Ternary[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}

func ArrayContains[T comparable](set []T, value T) bool {
	for _, item := range set {
		if item == value {
			return true
		}
	}
	return false
}

// IsValidSubcommand checks if the passed subcommand is supported by the parent command
func IsValidSubcommand(available []*cobra.Command, sub string) bool {
	for _, s := range available {
		if sub == s.CalledAs() || sub == s.Name() || ArrayContains(s.Aliases, sub) {
			return true
		}
	}
	return false
}

func CheckIfFilesExists(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			return fmt.Errorf("%s does not exist: %s", file, err)
		}
	}
	return nil
}

// UnmarshalFile reads a JSON or YAML file into dest. When decrypt is set and an
// encryption key is configured, the file content is decrypted first.
func UnmarshalFile(file string, dest any, decrypt bool) error {
	if err := CheckIfFilesExists(file); err != nil {
		return err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("file not found: %s", err)
	}

	if decrypt && strings.TrimSpace(viper.GetString(constants.EncryptionKey)) != "" {
		decrypted, err := DecryptConfig(string(data))
		if err != nil {
			return fmt.Errorf("failed to decrypt file[%s]: %s", file, err)
		}
		data = []byte(decrypted)
	}

	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		data, err = yaml.YAMLToJSON(data)
		if err != nil {
			return fmt.Errorf("failed to convert yaml file[%s]: %s", file, err)
		}
	}

	if err := UnmarshalBytes(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal file[%s]: %s", file, err)
	}
	return nil
}

// UnmarshalBytes decodes JSON keeping numbers as json.Number.
func UnmarshalBytes(data []byte, dest any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder.Decode(dest)
}

// Unmarshal converts one structure into another through JSON
func Unmarshal(from, object any) error {
	reformatted, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return UnmarshalBytes(reformatted, object)
}

func ULID() string {
	return ULIDAt(time.Now())
}

func ULIDAt(t time.Time) string {
	ulidMutex.Lock()
	defer ulidMutex.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}

func Pointer[T any](value T) *T {
	return &value
}

// GetKeysHash hashes the values of keys in record; used as a stable record id.
func GetKeysHash(record map[string]any, keys ...string) string {
	values := make([]any, 0, len(keys))
	for _, key := range keys {
		values = append(values, fmt.Sprint(record[key]))
	}
	hash, err := hashstructure.Hash(values, nil)
	if err != nil {
		return ULID()
	}
	return fmt.Sprintf("%d", hash)
}

func TimestampedFileName(extension string) string {
	now := time.Now().UTC()
	return fmt.Sprintf("%d-%d-%d_%d-%d-%d_%s.%s", now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), ULIDAt(now), extension)
}
