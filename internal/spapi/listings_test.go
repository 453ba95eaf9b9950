package spapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/zigilabs/amazon-mcp/internal/cache"
)

func TestGetListing_DefaultsAndLocale(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"marketplaceIds": r.URL.Query().Get("marketplaceIds"),
			"includedData":   r.URL.Query().Get("includedData"),
			"issueLocale":    r.URL.Query().Get("issueLocale"),
		}
		w.Write([]byte(`{"sku": "SKU-1", "summaries": []}`))
	}), nil)

	res, err := svc.GetListing(context.Background(), GetListingInput{
		SellerID:    "SELLER1",
		SKU:         "SKU-1",
		Marketplace: "UK",
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/listings/2021-08-01/items/SELLER1/SKU-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery["marketplaceIds"] != "A1F83G8C2ARO7P" {
		t.Errorf("marketplaceIds = %q", gotQuery["marketplaceIds"])
	}
	if gotQuery["includedData"] != "attributes,offers,fulfillmentAvailability" {
		t.Errorf("includedData = %q", gotQuery["includedData"])
	}
	if gotQuery["issueLocale"] != "en_GB" {
		t.Errorf("issueLocale = %q", gotQuery["issueLocale"])
	}
	if res.Data.(map[string]any)["sku"] != "SKU-1" {
		t.Errorf("data = %v", res.Data)
	}
}

func TestGetListing_CachedThenInvalidatedByPatch(t *testing.T) {
	reads := 0
	rc := cache.New(10)
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "PATCH" {
			w.Write([]byte(`{"status": "ACCEPTED", "submissionId": "sub-1"}`))
			return
		}
		reads++
		w.Write([]byte(`{"sku": "SKU-1"}`))
	}), rc)

	in := GetListingInput{SellerID: "SELLER1", SKU: "SKU-1", Marketplace: "UK"}
	if _, err := svc.GetListing(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetListing(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if reads != 1 {
		t.Fatalf("second read hit upstream, reads = %d", reads)
	}

	// a write drops the cached listing
	_, err := svc.PatchListing(context.Background(), "SELLER1", "SKU-1", "UK", "", []ListingPatch{
		{Op: "replace", Path: "/attributes/condition_type", Value: "new_new"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetListing(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if reads != 2 {
		t.Errorf("read after patch should miss the cache, reads = %d", reads)
	}
}

func TestPatchListing_BodyShape(t *testing.T) {
	var gotBody map[string]any
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status": "ACCEPTED"}`))
	}), nil)

	_, err := svc.PatchListing(context.Background(), "SELLER1", "SKU-1", "UK", "", []ListingPatch{
		{Op: "replace", Path: "/attributes/item_name", Value: "New title"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotBody["productType"] != "PRODUCT" {
		t.Errorf("productType = %v", gotBody["productType"])
	}
	patches := gotBody["patches"].([]any)
	p := patches[0].(map[string]any)
	if p["op"] != "replace" || p["path"] != "/attributes/item_name" {
		t.Errorf("patch = %v", p)
	}
}

func TestPatchListing_RequiresPatches(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called")
	}), nil)
	_, err := svc.PatchListing(context.Background(), "SELLER1", "SKU-1", "UK", "", nil)
	if err == nil || AsError(err).Kind != KindInvalidInput {
		t.Errorf("err = %v", err)
	}
}

func TestUpdatePrice_PatchShape(t *testing.T) {
	var gotBody map[string]any
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status": "ACCEPTED"}`))
	}), nil)

	res, err := svc.UpdatePrice(context.Background(), "SELLER1", "SKU-1", "UK", "69.98", "")
	if err != nil {
		t.Fatal(err)
	}
	patches := gotBody["patches"].([]any)
	p := patches[0].(map[string]any)
	if p["op"] != "replace" || p["path"] != "/attributes/purchasable_offer" {
		t.Errorf("patch = %v", p)
	}
	offer := p["value"].([]any)[0].(map[string]any)
	if offer["marketplace_id"] != "A1F83G8C2ARO7P" || offer["currency"] != "GBP" {
		t.Errorf("offer = %v", offer)
	}
	schedule := offer["our_price"].([]any)[0].(map[string]any)["schedule"].([]any)[0].(map[string]any)
	// the price travels as a decimal string, never a float
	if schedule["value_with_tax"] != "69.98" {
		t.Errorf("schedule = %v", schedule)
	}
	if res.Meta["price"] != "69.98" || res.Meta["currency"] != "GBP" {
		t.Errorf("meta = %v", res.Meta)
	}
	if res.Meta["listing_update"] == nil {
		t.Error("listing_update advisory missing")
	}
}

func TestUpdatePrice_CurrencyOverride(t *testing.T) {
	var gotBody map[string]any
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status": "ACCEPTED"}`))
	}), nil)

	if _, err := svc.UpdatePrice(context.Background(), "SELLER1", "SKU-1", "UK", "10.00", "EUR"); err != nil {
		t.Fatal(err)
	}
	offer := gotBody["patches"].([]any)[0].(map[string]any)["value"].([]any)[0].(map[string]any)
	if offer["currency"] != "EUR" {
		t.Errorf("offer = %v", offer)
	}
}

func TestUpdatePrice_RejectsBadInput(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called")
	}), nil)
	for _, bad := range []string{"", "0", "-1", "1e3", "abc"} {
		if _, err := svc.UpdatePrice(context.Background(), "SELLER1", "SKU-1", "UK", bad, ""); err == nil {
			t.Errorf("price %q accepted", bad)
		}
	}
	if _, err := svc.UpdatePrice(context.Background(), "SELLER1", "SKU-1", "UK", "9.99", "pounds"); err == nil {
		t.Error("bad currency accepted")
	}
}

func TestUpdateListing_PatchPerSuppliedField(t *testing.T) {
	var gotBody map[string]any
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status": "ACCEPTED"}`))
	}), nil)

	res, err := svc.UpdateListing(context.Background(), UpdateListingInput{
		SellerID:     "SELLER1",
		SKU:          "SKU-1",
		Marketplace:  "UK",
		Title:        "Better title",
		BulletPoints: []string{"one", "two"},
		Brand:        "Acme",
	})
	if err != nil {
		t.Fatal(err)
	}
	patches := gotBody["patches"].([]any)
	if len(patches) != 3 {
		t.Fatalf("patches = %v", patches)
	}
	byPath := map[string]map[string]any{}
	for _, raw := range patches {
		p := raw.(map[string]any)
		byPath[p["path"].(string)] = p
	}
	title := byPath["/attributes/item_name"]["value"].([]any)[0].(map[string]any)
	if title["value"] != "Better title" {
		t.Errorf("title = %v", title)
	}
	bullets := byPath["/attributes/bullet_point"]["value"].([]any)
	if len(bullets) != 2 || bullets[1].(map[string]any)["value"] != "two" {
		t.Errorf("bullets = %v", bullets)
	}
	if byPath["/attributes/brand"] == nil {
		t.Error("brand patch missing")
	}
	// untouched fields produce no patch
	if byPath["/attributes/product_description"] != nil {
		t.Error("description patched without being supplied")
	}
	advisory := res.Meta["listing_update"].(map[string]any)
	fields := advisory["fields_changed"].([]string)
	if len(fields) != 3 {
		t.Errorf("fields_changed = %v", fields)
	}
}

func TestUpdateListing_Bounds(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called")
	}), nil)
	six := []string{"a", "b", "c", "d", "e", "f"}
	if _, err := svc.UpdateListing(context.Background(), UpdateListingInput{
		SellerID: "SELLER1", SKU: "SKU-1", Marketplace: "UK", BulletPoints: six,
	}); err == nil || AsError(err).Kind != KindInvalidInput {
		t.Error("six bullet points accepted")
	}
	if _, err := svc.UpdateListing(context.Background(), UpdateListingInput{
		SellerID: "SELLER1", SKU: "SKU-1", Marketplace: "UK", SearchTerms: six,
	}); err == nil || AsError(err).Kind != KindInvalidInput {
		t.Error("six search terms accepted")
	}
	if _, err := svc.UpdateListing(context.Background(), UpdateListingInput{
		SellerID: "SELLER1", SKU: "SKU-1", Marketplace: "UK",
	}); err == nil || AsError(err).Kind != KindInvalidInput {
		t.Error("empty update accepted")
	}
}

func TestUpdateFbmInventory_PatchShape(t *testing.T) {
	var gotBody map[string]any
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status": "ACCEPTED"}`))
	}), nil)

	_, err := svc.UpdateFbmInventory(context.Background(), "SELLER1", "SKU-1", "UK", 25, 3, "")
	if err != nil {
		t.Fatal(err)
	}
	p := gotBody["patches"].([]any)[0].(map[string]any)
	if p["path"] != "/attributes/fulfillment_availability" {
		t.Errorf("patch path = %v", p["path"])
	}
	avail := p["value"].([]any)[0].(map[string]any)
	if avail["fulfillment_channel_code"] != "DEFAULT" {
		t.Errorf("avail = %v", avail)
	}
	if avail["quantity"] != float64(25) || avail["lead_time_to_ship_max_days"] != float64(3) {
		t.Errorf("avail = %v", avail)
	}
	if avail["restock_date"] != nil {
		t.Errorf("restock_date set without being supplied: %v", avail)
	}
}

func TestUpdateFbmInventory_RestockDate(t *testing.T) {
	var gotBody map[string]any
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status": "ACCEPTED"}`))
	}), nil)

	future := time.Now().AddDate(0, 1, 0).UTC().Format(time.RFC3339)
	if _, err := svc.UpdateFbmInventory(context.Background(), "SELLER1", "SKU-1", "UK", 0, 0, future); err != nil {
		t.Fatal(err)
	}
	avail := gotBody["patches"].([]any)[0].(map[string]any)["value"].([]any)[0].(map[string]any)
	if avail["restock_date"] == nil {
		t.Errorf("avail = %v", avail)
	}
	// quantity zero is a legal assignment
	if avail["quantity"] != float64(0) {
		t.Errorf("avail = %v", avail)
	}
}

func TestUpdateFbmInventory_Bounds(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called")
	}), nil)
	if _, err := svc.UpdateFbmInventory(context.Background(), "SELLER1", "SKU-1", "UK", -1, 0, ""); err == nil {
		t.Error("negative quantity accepted")
	}
	if _, err := svc.UpdateFbmInventory(context.Background(), "SELLER1", "SKU-1", "UK", 5, 31, ""); err == nil {
		t.Error("handling time 31 accepted")
	}
	past := "2020-01-01T00:00:00Z"
	if _, err := svc.UpdateFbmInventory(context.Background(), "SELLER1", "SKU-1", "UK", 5, 0, past); err == nil {
		t.Error("past restock date accepted")
	}
}
