package model

type BulkSendResult struct {
	BatchID            string            `json:"batchId"`
	Requested          int               `json:"requested"`
	Duplicates         int               `json:"duplicates"`
	Successful         int               `json:"successful"`
	Failed             int               `json:"failed"`
	Pending            int               `json:"pending"`
	PerRecipientErrors map[string]string `json:"perRecipientErrors"`
	StillProcessing    bool              `json:"stillProcessing"`
}
