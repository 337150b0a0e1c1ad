package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/openmarket/openmarket-cli/internal/api"
	"github.com/openmarket/openmarket-cli/internal/cache"
	"github.com/openmarket/openmarket-cli/internal/config"
	"github.com/openmarket/openmarket-cli/internal/dryrun"
	"github.com/openmarket/openmarket-cli/internal/formdata"
	"github.com/openmarket/openmarket-cli/internal/outfmt"
	"github.com/openmarket/openmarket-cli/internal/resolve"
)

// maxImageBytes bounds a single --image file.
const maxImageBytes = 10 << 20

func newProductsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product", "p"},
		Short:   "List, inspect and manage products",
	}

	cmd.AddCommand(newProductsListCmd())
	cmd.AddCommand(newProductsGetCmd())
	cmd.AddCommand(newProductsCreateCmd())
	cmd.AddCommand(newProductsUpdateCmd())
	cmd.AddCommand(newProductsDeleteCmd())
	return cmd
}

// productIndexStore is the cached name table for the client's host, or nil
// when no cache directory is available.
func productIndexStore(client *api.Client) *cache.Store {
	dir := resolveCacheDir()
	if dir == "" {
		return nil
	}
	return cache.NewStore(dir, "products", client.Builder.Host)
}

func productIndex(client *api.Client, s config.Settings) resolve.Index {
	return resolve.Index{
		Lister:   client.Products(),
		Store:    productIndexStore(client),
		PerPage:  s.PerPage,
		MaxPages: s.MaxPages,
	}
}

// invalidateProductIndex drops the name table after a write.
func invalidateProductIndex(client *api.Client) {
	if store := productIndexStore(client); store != nil {
		store.Clear()
	}
}

func formatPrice(amount decimal.Decimal, currency api.Currency) string {
	s, err := outfmt.FormatMoney(amount, currency)
	if err != nil {
		return amount.String()
	}
	return s
}

func productRow(p api.Product) []string {
	price := formatPrice(p.Price, p.Currency)
	if p.DiscountedPrice.IsPositive() && !p.DiscountedPrice.Equal(p.Price) {
		price = fmt.Sprintf("%s (was %s)", formatPrice(p.DiscountedPrice, p.Currency), price)
	}
	return []string{strconv.Itoa(p.ID), p.Name, price, strconv.Itoa(p.Stock), p.VendorName}
}

var productHeaders = []string{"ID", "NAME", "PRICE", "STOCK", "VENDOR"}

func newProductsListCmd() *cobra.Command {
	var (
		page    int
		perPage int
		all     bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List products",
		Example: strings.TrimSpace(`
  om products list
  om products list --page 2 --per-page 50
  om products list --all -o jsonl --jq '{id, name}'
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			ctx := cmdContext(cmd)
			if page < 1 {
				return fmt.Errorf("--page must be >= 1")
			}
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("per-page") {
				perPage = settings.PerPage
			}
			if perPage < 1 {
				return fmt.Errorf("--per-page must be >= 1")
			}

			client, err := getClient()
			if err != nil {
				return err
			}
			svc := client.Products()

			var (
				products []api.Product
				result   any
				warning  string
			)
			if all {
				products, err = svc.ListAll(ctx, perPage, settings.MaxPages)
				if errors.Is(err, api.ErrPageLimitReached) {
					warning = fmt.Sprintf("Stopped after %d pages (max_pages); output is partial.", settings.MaxPages)
				} else if err != nil {
					return err
				}
				if products == nil {
					products = []api.Product{}
				}
				result = products
				if store := productIndexStore(client); store != nil && warning == "" {
					store.Put(resolve.FromProducts(products))
				}
			} else {
				p, err := svc.List(ctx, page, perPage)
				if err != nil {
					return err
				}
				products = p.Pages
				result = p
			}

			f := newFormatter(cmd)
			if warning != "" {
				f.Empty(warning)
			}
			if outfmt.IsJSONL(ctx) {
				for _, p := range products {
					if err := f.Stream(p); err != nil {
						return err
					}
				}
				return nil
			}
			if isJSON(cmd) {
				return printJSON(cmd, result)
			}

			if len(products) == 0 {
				f.Empty("No products found.")
				return nil
			}
			f.StartTable(productHeaders)
			for _, p := range products {
				f.Row(productRow(p)...)
			}
			if err := f.EndTable(); err != nil {
				return err
			}
			if pg, ok := result.(*api.Page); ok && pg.HasNext {
				f.Empty(fmt.Sprintf("Page %d of %d. Use --page %d or --all for more.", pg.PageNo, pg.LastPage, pg.PageNo+1))
			}
			return nil
		}),
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "Products per page (default from config)")
	cmd.Flags().BoolVar(&all, "all", false, "Follow pages until the last one (bounded by max_pages)")
	flagAlias(cmd.Flags(), "per-page", "pp")

	return cmd
}

func newProductsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id|name>",
		Short: "Show a product with its images",
		Example: strings.TrimSpace(`
  om products get 42
  om products get "#42" --json
  om products get "blue mug"
`),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			id, err := parseProductArg(cmd, client, args[0])
			if err != nil {
				return err
			}
			product, err := client.Products().Get(cmdContext(cmd), id)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, product)
			}

			w := newTabWriterFromCmd(cmd)
			defer func() { _ = w.Flush() }()
			_, _ = fmt.Fprintf(w, "ID:\t%d\n", product.ID)
			_, _ = fmt.Fprintf(w, "Name:\t%s\n", product.Name)
			if product.Description != "" {
				_, _ = fmt.Fprintf(w, "Description:\t%s\n", product.Description)
			}
			_, _ = fmt.Fprintf(w, "Price:\t%s\n", formatPrice(product.Price, product.Currency))
			if product.DiscountedPrice.IsPositive() {
				_, _ = fmt.Fprintf(w, "Discount:\t%s\n", formatPrice(product.DiscountedPrice, product.Currency))
			}
			_, _ = fmt.Fprintf(w, "Bargain price:\t%s\n", formatPrice(product.BargainPrice, product.Currency))
			_, _ = fmt.Fprintf(w, "Stock:\t%d\n", product.Stock)
			if product.Vendors != nil {
				_, _ = fmt.Fprintf(w, "Vendor:\t%s (%d)\n", product.Vendors.Name, product.Vendors.ID)
			}
			if product.Thumbnail != "" {
				_, _ = fmt.Fprintf(w, "Thumbnail:\t%s\n", product.Thumbnail)
			}
			for i, img := range product.Images {
				_, _ = fmt.Fprintf(w, "Image %d:\t%s\n", i+1, img.URL)
			}
			_, _ = fmt.Fprintf(w, "Created:\t%s\n", product.CreatedAt)
			return nil
		}),
	}
}

// productFieldFlags are the scalar fields shared by create and update.
type productFieldFlags struct {
	name        string
	description string
	price       string
	currency    string
	discount    string
	stock       int
}

func (f *productFieldFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Product name")
	cmd.Flags().StringVar(&f.description, "description", "", "Product description")
	cmd.Flags().StringVar(&f.price, "price", "", "Price (e.g. 12000 or 9.99)")
	cmd.Flags().StringVar(&f.currency, "currency", "", "Currency: "+strings.Join(api.Currencies, "|"))
	cmd.Flags().StringVar(&f.discount, "discount", "", "Discounted price")
	cmd.Flags().IntVar(&f.stock, "stock", 0, "Units in stock")
	flagAlias(cmd.Flags(), "description", "desc")
	flagAlias(cmd.Flags(), "discount", "discounted-price")
}

// apply overwrites params with every flag the user set.
func (f *productFieldFlags) apply(cmd *cobra.Command, params *api.ProductParams) error {
	if flagOrAliasChanged(cmd, "name") {
		params.Name = f.name
	}
	if flagOrAliasChanged(cmd, "description") {
		params.Description = f.description
	}
	if flagOrAliasChanged(cmd, "price") {
		d, err := decimal.NewFromString(strings.TrimSpace(f.price))
		if err != nil {
			return api.NewValidationError("price", f.price, nil)
		}
		params.Price = d
	}
	if flagOrAliasChanged(cmd, "currency") {
		c, err := api.ParseCurrency(f.currency)
		if err != nil {
			return err
		}
		params.Currency = c
	}
	if flagOrAliasChanged(cmd, "discount") {
		d, err := decimal.NewFromString(strings.TrimSpace(f.discount))
		if err != nil {
			return api.NewValidationError("discount", f.discount, nil)
		}
		params.DiscountedPrice = d
	}
	if flagOrAliasChanged(cmd, "stock") {
		if f.stock < 0 {
			return fmt.Errorf("--stock must be >= 0")
		}
		params.Stock = uint(f.stock)
	}
	return nil
}

// readImages loads --image files, sniffing the content type from the bytes.
// With legacy set the parts carry no content type, so the encoder falls back
// to formdata.LegacyImageContentType.
func readImages(paths []string, legacy bool) ([]formdata.FilePart, error) {
	parts := make([]formdata.FilePart, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open image: %w", err)
		}
		data, err := readAllLimited(f, maxImageBytes)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read image %s: %w", path, err)
		}
		contentType := http.DetectContentType(data)
		if !strings.HasPrefix(contentType, "image/") {
			return nil, fmt.Errorf("%s is not an image (detected %s)", path, contentType)
		}
		if legacy {
			contentType = ""
		}
		parts = append(parts, formdata.FilePart{
			Filename:    filepath.Base(path),
			ContentType: contentType,
			Data:        data,
		})
	}
	return parts, nil
}

func newProductsCreateCmd() *cobra.Command {
	var (
		fields productFieldFlags
		images []string
		legacy bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a product with 1 to 5 images",
		Example: strings.TrimSpace(`
  om products create --name "Blue Mug" --price 12000 --currency KRW --stock 10 --image mug.jpg
  om products create --name Pen --price 1.50 --currency USD --discount 1.20 --image a.png --image b.png --dry-run
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			params := api.ProductParams{Currency: api.KRW}
			if err := fields.apply(cmd, &params); err != nil {
				return err
			}
			if len(images) == 0 {
				return fmt.Errorf("--image is required: %w", api.ErrNoImages)
			}
			if len(images) > api.MaxImages {
				return fmt.Errorf("--image given %d times: %w", len(images), api.ErrTooManyImages)
			}
			parts, err := readImages(images, legacy)
			if err != nil {
				return err
			}

			client, err := getClient()
			if err != nil {
				return err
			}
			svc := client.Products()

			if dryrun.IsEnabled(cmd.Context()) {
				d, err := svc.PrepareCreate(params, parts)
				if err != nil {
					return err
				}
				_, err = maybeDryRun(cmd, "create", "product", d)
				return err
			}

			product, err := svc.Create(cmdContext(cmd), params, parts)
			if err != nil {
				return err
			}
			invalidateProductIndex(client)

			if isJSON(cmd) {
				return printJSON(cmd, product)
			}
			printAction(cmd, "Created", "product", product.ID, product.Name)
			return nil
		}),
	}

	fields.register(cmd)
	cmd.Flags().StringArrayVar(&images, "image", nil, "Image file (repeat up to 5 times)")
	cmd.Flags().BoolVar(&legacy, "legacy-content-type", false, "Label image parts multipart/form-data like older clients did")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("price")
	flagAlias(cmd.Flags(), "image", "img")

	return cmd
}

func newProductsUpdateCmd() *cobra.Command {
	var fields productFieldFlags

	cmd := &cobra.Command{
		Use:   "update <id|name>",
		Short: "Change product fields",
		Long:  "Change the given fields. Unset fields keep their current values, which are read from the server first.",
		Example: strings.TrimSpace(`
  om products update 42 --stock 0
  om products update "blue mug" --price 11000 --discount 9900 --dry-run
`),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			changed := false
			for _, name := range []string{"name", "description", "price", "currency", "discount", "stock"} {
				if flagOrAliasChanged(cmd, name) {
					changed = true
					break
				}
			}
			if !changed {
				return fmt.Errorf("at least one of --name, --description, --price, --currency, --discount or --stock is required")
			}

			ctx := cmdContext(cmd)
			client, err := getClient()
			if err != nil {
				return err
			}
			id, err := parseProductArg(cmd, client, args[0])
			if err != nil {
				return err
			}
			svc := client.Products()
			current, err := svc.Get(ctx, id)
			if err != nil {
				return err
			}
			params := api.ParamsFromProduct(current)
			if err := fields.apply(cmd, &params); err != nil {
				return err
			}

			if dryrun.IsEnabled(ctx) {
				d, err := svc.PrepareUpdate(id, params)
				if err != nil {
					return err
				}
				_, err = maybeDryRun(cmd, "update", "product", d)
				return err
			}

			product, err := svc.Update(ctx, id, params)
			if err != nil {
				return err
			}
			invalidateProductIndex(client)

			if isJSON(cmd) {
				return printJSON(cmd, product)
			}
			printAction(cmd, "Updated", "product", product.ID, product.Name)
			return nil
		}),
	}

	fields.register(cmd)
	return cmd
}

func newProductsDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <id|name>",
		Aliases: []string{"rm"},
		Short:   "Delete a product",
		Long:    "Ask the server for the product's delete URI using the vendor secret, then delete through it.",
		Example: strings.TrimSpace(`
  om products delete 42
  om products delete 42 --force --json
`),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			client, err := getClient()
			if err != nil {
				return err
			}
			id, err := parseProductArg(cmd, client, args[0])
			if err != nil {
				return err
			}
			svc := client.Products()

			if dryrun.IsEnabled(ctx) {
				d, err := svc.PrepareArchiveToken(id)
				if err != nil {
					return err
				}
				_, err = maybeDryRun(cmd, "delete", "product", d,
					"A DELETE to the URI returned by this request follows.")
				return err
			}

			ok, err := confirmAction(cmd, confirmOptions{
				Prompt:        fmt.Sprintf("Delete product %d? (y/N): ", id),
				CancelMessage: "Cancelled.",
				Force:         force,
			})
			if err != nil || !ok {
				return err
			}

			product, err := svc.Delete(ctx, id)
			if err != nil {
				return err
			}
			invalidateProductIndex(client)

			if isJSON(cmd) {
				payload := map[string]any{"deleted": true, "id": id}
				if product != nil {
					payload["product"] = product
				}
				return printJSON(cmd, payload)
			}
			name := ""
			if product != nil {
				name = product.Name
			}
			printAction(cmd, "Deleted", "product", id, name)
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")
	return cmd
}
