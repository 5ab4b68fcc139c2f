package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pevans/newsharvest"
	"github.com/pevans/newsharvest/workitems"
)

// printItemsTable prints items in human-readable table format
func printItemsTable(items []workitems.Item) {
	if len(items) == 0 {
		fmt.Println("No work items.")
		return
	}

	fmt.Printf("%-36s %-12s %-20s %s\n", "ID", "STATE", "CREATED", "SEARCH")
	fmt.Println("----------------------------------------------------------------------------------------------------")

	for _, item := range items {
		search := string(item.Payload)
		if req, err := newsharvest.ParsePayload(item.Payload); err == nil {
			search = fmt.Sprintf("%q, %d months", req.SearchTerm, req.HorizonMonths)
		}
		if len(search) > 40 {
			search = search[:37] + "..."
		}

		fmt.Printf("%-36s %-12s %-20s %s\n",
			item.ID.String(),
			item.State,
			item.CreatedAt.Format("2006-01-02 15:04"),
			search,
		)
	}
}

// printItemsJSON prints items in JSON format
func printItemsJSON(items []workitems.Item) error {
	if items == nil {
		items = []workitems.Item{}
	}
	output := map[string]any{
		"items": items,
		"total": len(items),
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Println(string(data))
	return nil
}

// printItemDetail prints every field of one item
func printItemDetail(item *workitems.Item) {
	fmt.Printf("ID:       %s\n", item.ID)
	fmt.Printf("State:    %s\n", item.State)
	fmt.Printf("Created:  %s\n", item.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:  %s\n", item.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("Payload:  %s\n", item.Payload)
	if item.OutputPath != nil {
		fmt.Printf("Output:   %s\n", *item.OutputPath)
	}
	if item.Code != nil {
		fmt.Printf("Failure:  %s/%s\n", deref(item.ExceptionType), *item.Code)
		fmt.Printf("Message:  %s\n", deref(item.Message))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
