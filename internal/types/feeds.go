// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package types

// NVDResponse is the envelope returned by the NVD CVE API 2.0.
type NVDResponse struct {
	ResultsPerPage  int                `json:"resultsPerPage"`
	StartIndex      int                `json:"startIndex"`
	TotalResults    int                `json:"totalResults"`
	Vulnerabilities []NVDVulnerability `json:"vulnerabilities"`
}

// NVDVulnerability wraps a single CVE entry in the NVD response.
type NVDVulnerability struct {
	CVE NVDCVE `json:"cve"`
}

// NVDCVE holds the fields of an NVD CVE entry this system consumes.
type NVDCVE struct {
	ID        string     `json:"id"`
	Published string     `json:"published"`
	Metrics   NVDMetrics `json:"metrics"`
}

// NVDMetrics holds the CVSS metric lists by version.
type NVDMetrics struct {
	CVSSMetricV31 []NVDCVSSMetric `json:"cvssMetricV31"`
	CVSSMetricV30 []NVDCVSSMetric `json:"cvssMetricV30"`
	CVSSMetricV2  []NVDCVSSMetric `json:"cvssMetricV2"`
}

// NVDCVSSMetric wraps the CVSS data of one metric entry.
type NVDCVSSMetric struct {
	CVSSData NVDCVSSData `json:"cvssData"`
}

// NVDCVSSData holds the CVSS base score.
type NVDCVSSData struct {
	BaseScore float64 `json:"baseScore"`
}

// KEVEntry represents a single entry in the CISA KEV catalog JSON.
type KEVEntry struct {
	CVEID                      string `json:"cveID"`
	VendorProject              string `json:"vendorProject"`
	Product                    string `json:"product"`
	DateAdded                  string `json:"dateAdded"`
	DueDate                    string `json:"dueDate"`
	KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse"`
}

// KEVCatalog represents the CISA KEV catalog JSON structure.
type KEVCatalog struct {
	CatalogVersion  string     `json:"catalogVersion"`
	DateReleased    string     `json:"dateReleased"`
	Count           int        `json:"count"`
	Vulnerabilities []KEVEntry `json:"vulnerabilities"`
}

// EPSSResponse is the envelope returned by the FIRST EPSS API.
// Score values arrive as decimal strings, not numbers.
type EPSSResponse struct {
	Status string      `json:"status"`
	Total  int         `json:"total"`
	Data   []EPSSScore `json:"data"`
}

// EPSSScore is a single CVE's exploitation probability record.
type EPSSScore struct {
	CVE        string `json:"cve"`
	EPSS       string `json:"epss"`
	Percentile string `json:"percentile"`
	Date       string `json:"date"`
}
