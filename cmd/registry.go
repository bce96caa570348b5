package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/letsencrypt/validator/v10"

	"github.com/letsencrypt/batchdml/config"
	"github.com/letsencrypt/batchdml/strictyaml"
)

// ConfigValidator pairs a config struct with any custom validation tags its
// fields use.
type ConfigValidator struct {
	Config     interface{}
	Validators map[string]validator.Func
}

var registry struct {
	sync.Mutex
	configs map[string]*ConfigValidator
}

// RegisterConfigValidator registers the config validator for a command. It
// panics if the command already has one.
func RegisterConfigValidator(name string, cv *ConfigValidator) {
	registry.Lock()
	defer registry.Unlock()

	if registry.configs == nil {
		registry.configs = make(map[string]*ConfigValidator)
	}

	if registry.configs[name] != nil {
		panic(fmt.Sprintf("config validator for command %q was registered twice", name))
	}
	registry.configs[name] = cv
}

// LookupConfigValidator constructs an instance of the *ConfigValidator for the
// given command name. If no *ConfigValidator was registered, nil is returned.
func LookupConfigValidator(name string) *ConfigValidator {
	registry.Lock()
	defer registry.Unlock()
	if registry.configs[name] == nil {
		return nil
	}

	// Create a new copy of the config struct so that we can validate it
	// multiple times without mutating the registry's copy.
	copy := reflect.New(reflect.ValueOf(
		registry.configs[name].Config).Elem().Type(),
	).Interface()

	return &ConfigValidator{
		Config:     copy,
		Validators: registry.configs[name].Validators,
	}
}

// AvailableConfigValidators returns a list of command names for which a
// *ConfigValidator has been registered.
func AvailableConfigValidators() []string {
	registry.Lock()
	defer registry.Unlock()
	var avail []string
	for name := range registry.configs {
		avail = append(avail, name)
	}
	sort.Strings(avail)
	return avail
}

// ReadAndValidateConfigFile uses the ConfigValidator registered for the given
// command to validate the provided config file. If the command does not have a
// registered ConfigValidator, this function does nothing.
func ReadAndValidateConfigFile(name, filename string) error {
	cv := LookupConfigValidator(name)
	if cv == nil {
		return nil
	}
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	if isYAML(filename) {
		return ValidateYAMLConfig(cv, file)
	}
	return ValidateJSONConfig(cv, file)
}

func newValidator(cv *ConfigValidator) (*validator.Validate, error) {
	if cv == nil {
		return nil, errors.New("config validator cannot be nil")
	}

	// Initialize the validator and load any custom tags.
	validate := validator.New()
	for tag, v := range cv.Validators {
		err := validate.RegisterValidation(tag, v)
		if err != nil {
			return nil, err
		}
	}

	// Register custom types for use with existing validation tags.
	validate.RegisterCustomTypeFunc(config.DurationCustomTypeFunc, config.Duration{})
	return validate, nil
}

// validationErrors flattens validator.ValidationErrors into a single error.
func validationErrors(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	allErrs := make([]string, 0, len(errs))
	for _, e := range errs {
		allErrs = append(allErrs, e.Error())
	}
	return errors.New(strings.Join(allErrs, ", "))
}

// ValidateJSONConfig takes a *ConfigValidator and an io.Reader containing a
// JSON representation of a config. The JSON data is unmarshaled into the
// *ConfigValidator's inner Config and then validated according to the
// 'validate' tags for on each field. Callers can use cmd.LookupConfigValidator
// to get a *ConfigValidator for a given command.
func ValidateJSONConfig(cv *ConfigValidator, in io.Reader) error {
	validate, err := newValidator(cv)
	if err != nil {
		return err
	}

	err = decodeJSONStrict(in, cv.Config)
	if err != nil {
		return err
	}
	err = validate.Struct(cv.Config)
	if err != nil {
		return validationErrors(err)
	}
	return nil
}

// ValidateYAMLConfig takes a *ConfigValidator and an io.Reader containing a
// YAML representation of a config. The YAML data is unmarshaled into the
// *ConfigValidator's inner Config and then validated according to the
// 'validate' tags for on each field.
func ValidateYAMLConfig(cv *ConfigValidator, in io.Reader) error {
	validate, err := newValidator(cv)
	if err != nil {
		return err
	}

	inBytes, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	err = strictyaml.Unmarshal(inBytes, cv.Config)
	if err != nil {
		return err
	}
	err = validate.Struct(cv.Config)
	if err != nil {
		return validationErrors(err)
	}
	return nil
}
