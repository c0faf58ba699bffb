package goldenrun

import (
	"encoding/json"
	"os"
)

func readReportFromDisk(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, err
	}
	return rep.Normalize(), nil
}
