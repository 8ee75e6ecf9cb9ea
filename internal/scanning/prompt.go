package scanning

const receiptSystemPrompt = "You are an expert at reading receipts. You copy merchant names, line items and amounts exactly as printed."

// receiptScanPrompt is the shared prompt used by all LLM providers for scanning receipts
const receiptScanPrompt = `You are reading a restaurant or shop receipt so the bill can be split between friends. Carefully read all text in the image and extract the following information:

1. **Merchant Name**: The store, restaurant or business name, usually the largest text at the top.

2. **Date**: The transaction date, converted to ISO 8601 format (YYYY-MM-DD).

3. **Line Items**: Every purchased item with its description, unit price and quantity. If a line reads "2 x 2.50" the quantity is 2 and the unit price is 2.50. Use quantity 1 when none is printed.

4. **Subtotal, Tax, Service Charge**: The amounts printed next to labels such as "Subtotal", "Tax", "GST", "SST", "Service Tax", "Service Charge" or "Svc Chg".

5. **Total Amount**: The final total, grand total, or amount due.

Return ONLY valid JSON in this exact format:
{
  "title": "Merchant Name",
  "date": "YYYY-MM-DD",
  "amount": 0.00,
  "subtotal": 0.00,
  "tax": 0.00,
  "service_charge": 0.00,
  "items": [
    {"description": "Item name", "unit_price": 0.00, "quantity": 1}
  ]
}

Important:
- Amounts must be numbers (not strings) without currency symbols such as "RM" or "$"
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
