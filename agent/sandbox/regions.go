package sandbox

import (
	"context"

	"github.com/dop251/goja"
)

// Region is one entry returned by listRegions().
type Region struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var regionCodes = []string{
	"us-east-1", "us-east-2", "us-west-1", "us-west-2",
	"af-south-1",
	"ap-east-1", "ap-south-1",
	"ap-northeast-1", "ap-northeast-2", "ap-northeast-3",
	"ap-southeast-1", "ap-southeast-2", "ap-southeast-3", "ap-southeast-4",
	"ap-south-2",
	"ca-central-1", "ca-west-1",
	"eu-central-1", "eu-central-2",
	"eu-west-1", "eu-west-2", "eu-west-3",
	"eu-north-1", "eu-south-1", "eu-south-2",
	"il-central-1",
	"me-central-1", "me-south-1",
	"sa-east-1",
}

var regionNames = map[string]string{
	"us-east-1":      "US East (N. Virginia)",
	"us-east-2":      "US East (Ohio)",
	"us-west-1":      "US West (N. California)",
	"us-west-2":      "US West (Oregon)",
	"af-south-1":     "Africa (Cape Town)",
	"ap-east-1":      "Asia Pacific (Hong Kong)",
	"ap-south-1":     "Asia Pacific (Mumbai)",
	"ap-south-2":     "Asia Pacific (Hyderabad)",
	"ap-northeast-1": "Asia Pacific (Tokyo)",
	"ap-northeast-2": "Asia Pacific (Seoul)",
	"ap-northeast-3": "Asia Pacific (Osaka)",
	"ap-southeast-1": "Asia Pacific (Singapore)",
	"ap-southeast-2": "Asia Pacific (Sydney)",
	"ap-southeast-3": "Asia Pacific (Jakarta)",
	"ap-southeast-4": "Asia Pacific (Melbourne)",
	"ca-central-1":   "Canada (Central)",
	"eu-central-1":   "Europe (Frankfurt)",
	"eu-central-2":   "Europe (Zurich)",
	"eu-west-1":      "Europe (Ireland)",
	"eu-west-2":      "Europe (London)",
	"eu-west-3":      "Europe (Paris)",
	"eu-north-1":     "Europe (Stockholm)",
	"eu-south-1":     "Europe (Milan)",
	"eu-south-2":     "Europe (Spain)",
	"me-central-1":   "Middle East (UAE)",
	"me-south-1":     "Middle East (Bahrain)",
	"sa-east-1":      "South America (São Paulo)",
}

// RegionName returns the display name of code, or code itself when unknown.
func RegionName(code string) string {
	if name, ok := regionNames[code]; ok {
		return name
	}
	return code
}

// Regions returns the static region table.
func Regions() []Region {
	out := make([]Region, len(regionCodes))
	for i, code := range regionCodes {
		out[i] = Region{Code: code, Name: RegionName(code)}
	}
	return out
}

// RegionsBinding installs listRegions(). It needs no credentials.
type RegionsBinding struct{}

func (RegionsBinding) Name() string { return "regions" }

func (RegionsBinding) Install(_ context.Context, vm *goja.Runtime) error {
	return vm.Set("listRegions", func(goja.FunctionCall) goja.Value {
		regions := Regions()
		items := make([]any, len(regions))
		for i, r := range regions {
			obj := vm.NewObject()
			_ = obj.Set("code", r.Code)
			_ = obj.Set("name", r.Name)
			items[i] = obj
		}
		return vm.NewArray(items...)
	})
}
